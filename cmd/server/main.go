package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	router "github.com/dkeye/Conference/internal/adapters/http"
	"github.com/dkeye/Conference/internal/adapters/rtc"
	sig "github.com/dkeye/Conference/internal/adapters/signal"
	"github.com/dkeye/Conference/internal/app"
	"github.com/dkeye/Conference/internal/app/orch"
	"github.com/dkeye/Conference/internal/app/sfu"
	"github.com/dkeye/Conference/internal/config"
	"github.com/dkeye/Conference/internal/logging"
	"github.com/dkeye/Conference/internal/storage/chatstore"
)

// loadConfig layers command line flags over the config file and environment.
func loadConfig(args []string) (*config.Config, error) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to the yaml config file")
	fs.Int("port", 8080, "http listen port")
	fs.String("mode", "release", "gin mode: debug, release or test")
	fs.String("log-level", "info", "zerolog level")
	fs.String("static-path", "./web", "directory served under /static")
	fs.String("backpressure", "kick", "slow member handling: kick or drop")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(config.WithFile(*configFile), config.WithFlags("", fs))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger first so config.Load can report where it read from.
	logging.Init("info", true)

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.LogLevel, cfg.Mode != "release")

	chats, err := chatstore.Open(chatstore.Options{
		Backend:       chatstore.Backend(cfg.Chat.Store),
		HistoryLimit:  cfg.Chat.HistoryLimit,
		RedisAddr:     cfg.Chat.RedisAddr,
		RedisPassword: cfg.Chat.RedisPassword,
		RedisDB:       cfg.Chat.RedisDB,
		BadgerPath:    cfg.Chat.BadgerPath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Chat.Store).Msg("failed to open chat store")
	}

	policy, err := app.ParsePolicy(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backpressure policy")
	}

	media, err := rtc.NewRouter(rtc.RouterConfig{
		Settings: rtc.Settings{
			ICEServers:      cfg.Media.ICEServers,
			UDPPortMin:      cfg.Media.UDPPortMin,
			UDPPortMax:      cfg.Media.UDPPortMax,
			NAT1To1IPs:      cfg.Media.NAT1To1IPs,
			IncludeLoopback: cfg.Media.IncludeLoopback,
		},
		GatherTimeout:  cfg.Media.GatherTimeout,
		ConnectTimeout: cfg.Media.ConnectTimeout,
	}, sfu.NewRelayManager())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build media router")
	}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   policy,
		Router:   media,
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:        o,
		Chats:       chats,
		ChatLimiter: sig.NewRoomRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
		Stats:       media,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("chat_store", cfg.Chat.Store).Msg("Conference server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	for _, room := range o.Rooms.List() {
		o.EvictRoom(room.ID)
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := chats.Close(); err != nil {
		log.Error().Err(err).Msg("chat store close")
	}
	log.Info().Msg("Server exited gracefully")
}
