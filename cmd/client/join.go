package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Conference/internal/adapters/rtc"
	"github.com/dkeye/Conference/internal/chat"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/dkeye/Conference/internal/logging"
	"github.com/dkeye/Conference/internal/session"
	"github.com/dkeye/Conference/internal/signaling"
)

const (
	signalPath   = "/api/ws/signal"
	leaveTimeout = 5 * time.Second
)

func newJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room and stay until interrupted",
		Long: `Join a room and stay until interrupted.

Lines typed on stdin are sent as chat. /audio and /video toggle publishing,
/quit leaves the room.

Examples:
  conference join --server http://localhost:8080 --room standup --name Alice
  conference join --room standup --name Bob --audio voice.ogg --video cam.ivf`,
		Args: cobra.NoArgs,
		RunE: runJoin,
	}
	f := cmd.Flags()
	f.String("server", "", "server base url")
	f.String("room", "", "room to join")
	f.String("name", "", "display name")
	f.String("audio", "", "ogg/opus file published as the microphone")
	f.String("video", "", "ivf file published as the camera")
	f.Bool("loop", true, "restart media files when they end")
	f.Bool("force-tcp", false, "ask the server for TCP ICE candidates only")
	return cmd
}

func runJoin(cmd *cobra.Command, _ []string) error {
	logging.Init("info", true)
	cfg, err := config.Load(config.WithFile(flagConfig), config.WithFlags("client", cmd.Flags()))
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, true)
	c := cfg.Client

	wsURL, err := signalURL(c.Server)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One jar so the history endpoint sees the cookie set on the signaling upgrade.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	ch := signaling.NewChannel(wsURL,
		signaling.WithDialer(&websocket.Dialer{Jar: jar, HandshakeTimeout: c.RequestTimeout}),
		signaling.WithRequestTimeout(c.RequestTimeout))
	if err := ch.Connect(ctx); err != nil {
		return err
	}

	out := newRenderer(cmd.OutOrStdout())
	s, err := session.New(session.Options{
		RoomID:   domain.RoomID(c.Room),
		Name:     c.Name,
		ForceTCP: c.ForceTCP,
	}, session.Deps{
		Signaler: ch,
		Device: rtc.NewDevice(rtc.Settings{
			ICEServers:      cfg.Media.ICEServers,
			IncludeLoopback: cfg.Media.IncludeLoopback,
		}),
		Media:    &rtc.FileSource{AudioPath: c.Audio, VideoPath: c.Video, Loop: c.Loop},
		History:  chat.NewHTTPHistory(c.Server, &http.Client{Jar: jar, Timeout: c.RequestTimeout}),
		Observer: out,
	})
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := s.Leave(leaveCtx); err != nil {
			log.Warn().Err(err).Msg("leave")
		}
	}()

	if err := s.Join(ctx); err != nil {
		return err
	}
	if err := s.LoadChatHistory(ctx); err != nil {
		out.OnNotice("chat history unavailable: " + err.Error())
	}
	for _, m := range []struct {
		kind domain.MediaKind
		path string
	}{{domain.KindAudio, c.Audio}, {domain.KindVideo, c.Video}} {
		if m.path == "" {
			continue
		}
		kind := m.kind
		if err := s.StartMedia(ctx, kind); err != nil {
			out.OnNotice(fmt.Sprintf("cannot publish %s: %v", kind, err))
		}
	}

	lines := readLines(cmd.InOrStdin())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return fmt.Errorf("signaling connection lost")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, s, out, line); quit {
				return nil
			}
		}
	}
}

// handleLine runs one stdin command and reports whether the user asked to leave.
func handleLine(ctx context.Context, s *session.Session, out *renderer, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
	case "/quit":
		return true
	case "/audio", "/video":
		toggle := s.ToggleAudio
		if line == "/video" {
			toggle = s.ToggleVideo
		}
		on, err := toggle(ctx)
		if err != nil {
			out.OnNotice(fmt.Sprintf("%s: %v", line, err))
			break
		}
		out.OnNotice(fmt.Sprintf("%s %s", strings.TrimPrefix(line, "/"), onOff(on)))
	default:
		if err := s.SendChat(ctx, line); err != nil {
			out.OnNotice("chat not sent: " + err.Error())
		}
	}
	return false
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// signalURL maps the server base url to its signaling websocket endpoint.
func signalURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: want http or https", server)
	}
	u.Path = strings.TrimRight(u.Path, "/") + signalPath
	u.RawQuery = ""
	return u.String(), nil
}
