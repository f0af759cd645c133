package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	req := require.New(t)

	// When
	cfg, err := Load(WithFile(filepath.Join(t.TempDir(), "missing.yaml")))

	// Then
	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("memory", cfg.Chat.Store)
	req.Equal(10*time.Second, cfg.Media.ConnectTimeout)
	req.Equal(3*time.Second, cfg.Chat.RateInterval)
	req.True(cfg.Client.Loop)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	req := require.New(t)

	// Given
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	req.NoError(os.WriteFile(path, []byte(`
port: 9000
chat:
  store: badger
  rate_limit: 2
client:
  room: standup
  name: Alice
media:
  ice_servers:
    - stun:stun.example.org:3478
`), 0o600))
	t.Setenv("CONFERENCE_CHAT_STORE", "redis")
	t.Setenv("CONFERENCE_CLIENT_NAME", "Bob")

	fs := pflag.NewFlagSet("join", pflag.ContinueOnError)
	fs.String("name", "", "")
	fs.Bool("force-tcp", false, "")
	req.NoError(fs.Parse([]string{"--name", "Carol", "--force-tcp"}))

	// When
	cfg, err := Load(WithFile(path), WithFlags("client", fs))

	// Then
	req.NoError(err)
	req.Equal(9000, cfg.Port)
	req.Equal("redis", cfg.Chat.Store)
	req.Equal(2, cfg.Chat.RateLimit)
	req.Equal("standup", cfg.Client.Room)
	req.Equal("Carol", cfg.Client.Name)
	req.True(cfg.Client.ForceTCP)
	req.Equal([]string{"stun:stun.example.org:3478"}, cfg.Media.ICEServers)
}

func TestLoad_UnsetFlagDoesNotMaskFile(t *testing.T) {
	req := require.New(t)

	// Given
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	req.NoError(os.WriteFile(path, []byte("client:\n  room: retro\n"), 0o600))
	fs := pflag.NewFlagSet("join", pflag.ContinueOnError)
	fs.String("room", "", "")
	req.NoError(fs.Parse(nil))

	// When
	cfg, err := Load(WithFile(path), WithFlags("client", fs))

	// Then
	req.NoError(err)
	req.Equal("retro", cfg.Client.Room)
}
