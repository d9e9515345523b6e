// Command web runs the shock propagation monitoring server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tremor/internal/app"
	"tremor/internal/config"
	"tremor/pkg/contracts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		slog.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	application.Logger.Info("starting "+contracts.GetVersionString(),
		slog.String("commit", contracts.GitCommit))

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			application.Logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case sig := <-stop:
		application.Logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		if err := application.Stop(context.Background()); err != nil {
			application.Logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}
