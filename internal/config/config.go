package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONFERENCE"

type Config struct {
	Mode         string       `mapstructure:"mode"`
	Port         int          `mapstructure:"port"`
	StaticPath   string       `mapstructure:"static_path"`
	Secret       string       `mapstructure:"secret"`
	LogLevel     string       `mapstructure:"log_level"`
	Backpressure string       `mapstructure:"backpressure"` // kick or drop
	Media        MediaConfig  `mapstructure:"media"`
	Chat         ChatConfig   `mapstructure:"chat"`
	Client       ClientConfig `mapstructure:"client"`
}

type MediaConfig struct {
	ICEServers      []string      `mapstructure:"ice_servers"`
	UDPPortMin      uint16        `mapstructure:"udp_port_min"`
	UDPPortMax      uint16        `mapstructure:"udp_port_max"`
	NAT1To1IPs      []string      `mapstructure:"nat_1to1_ips"`
	IncludeLoopback bool          `mapstructure:"include_loopback"`
	GatherTimeout   time.Duration `mapstructure:"gather_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

type ChatConfig struct {
	Store         string        `mapstructure:"store"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	BadgerPath    string        `mapstructure:"badger_path"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
}

// ClientConfig feeds cmd/client; flags override file and env values.
type ClientConfig struct {
	Server         string        `mapstructure:"server"`
	Room           string        `mapstructure:"room"`
	Name           string        `mapstructure:"name"`
	Audio          string        `mapstructure:"audio"`
	Video          string        `mapstructure:"video"`
	Loop           bool          `mapstructure:"loop"`
	ForceTCP       bool          `mapstructure:"force_tcp"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type loadOptions struct {
	file      string
	flags     *pflag.FlagSet
	flagScope string
}

type Option func(*loadOptions)

// WithFile overrides the config/config.<CONFIG_ENV>.yaml lookup.
func WithFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// WithFlags binds every flag in fs to <scope>.<flag name>, dashes as underscores.
// An empty scope binds top-level keys.
func WithFlags(scope string, fs *pflag.FlagSet) Option {
	return func(o *loadOptions) {
		o.flags = fs
		o.flagScope = scope
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "conference-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("media.ice_servers", []string{})
	v.SetDefault("media.udp_port_min", 0)
	v.SetDefault("media.udp_port_max", 0)
	v.SetDefault("media.nat_1to1_ips", []string{})
	v.SetDefault("media.include_loopback", false)
	v.SetDefault("media.gather_timeout", "5s")
	v.SetDefault("media.connect_timeout", "10s")

	v.SetDefault("chat.store", "memory")
	v.SetDefault("chat.history_limit", 500)
	v.SetDefault("chat.redis_addr", "localhost:6379")
	v.SetDefault("chat.redis_password", "")
	v.SetDefault("chat.redis_db", 0)
	v.SetDefault("chat.badger_path", "./data/chat")
	v.SetDefault("chat.rate_limit", 5)
	v.SetDefault("chat.rate_interval", "3s")

	v.SetDefault("client.server", "http://localhost:8080")
	v.SetDefault("client.room", "")
	v.SetDefault("client.name", "")
	v.SetDefault("client.audio", "")
	v.SetDefault("client.video", "")
	v.SetDefault("client.loop", true)
	v.SetDefault("client.force_tcp", false)
	v.SetDefault("client.request_timeout", "10s")
}

func Load(opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	fileName := o.file
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		var bindErr error
		o.flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if o.flagScope != "" {
				key = o.flagScope + "." + key
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Debug().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("chat_store", cfg.Chat.Store).
		Msg("config ready")
	return &cfg, nil
}
