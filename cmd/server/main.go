package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/relaychat/internal/logging"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return err
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting relay",
		"tcp_addr", cfg.TCPAddr,
		"http_addr", cfg.HTTPAddr,
		"conn_id_mode", cfg.ConnIDMode,
		"broadcast_sentinel", cfg.BroadcastSentinel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(*cfg, clockwork.NewRealClock())
	go hub.Run()
	slog.Info("Hub started and ready to route messages")

	tcpErr := make(chan error, 1)
	go func() {
		err := server.NewServer(*cfg, hub).ListenAndServe(ctx)
		if err != nil {
			slog.Error("TCP server error", "error", err)
			stop()
		}
		tcpErr <- err
	}()

	httpServer := server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(server.NewHandlers(hub, *cfg)))
	go func() {
		if err := server.StartServer(httpServer); err != nil {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	listenErr := <-tcpErr
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return err
	}
	return listenErr
}
