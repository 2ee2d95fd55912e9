package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/logger/pkg/logger"

	"github.com/wavenet-im/chat-client/config"
	"github.com/wavenet-im/chat-client/internal/devserver"
	"github.com/wavenet-im/chat-client/internal/domain"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   "wavenet-devserver",
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})

	store := devserver.NewStore()
	// demo identities for quick local runs
	store.AddUser(domain.Participant{ID: "alice", Username: "alice", Email: "alice@example.com"})
	store.AddUser(domain.Participant{ID: "bob", Username: "bob", Email: "bob@example.com"})

	srv := devserver.New(store)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("devserver listen", "addr", cfg.Server.Addr)
		if err := srv.Serve(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}
	slog.Info("stopped")
}
