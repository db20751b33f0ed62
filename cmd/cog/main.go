package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tracking-cog/internal/di"
	"tracking-cog/internal/infrastructure/env"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tracking-cog: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envService := env.NewEnvService()

	container, err := di.NewContainer(ctx, envService)
	if err != nil {
		return err
	}
	defer container.Close()

	log := container.Logger
	log.Info("starting", "version", di.Version, "app_env", envService.AppEnv(), "env_files", envService.LoadedFiles())

	lis, err := net.Listen("tcp", container.Config.Addr())
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", container.Config.Addr(), err)
	}

	if container.Metrics != nil {
		if err := container.Metrics.Start(); err != nil {
			return err
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- container.GRPC.Serve(lis) }()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("grpc server stopped", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	container.GRPC.Shutdown(shutdownCtx)
	if container.Metrics != nil {
		if err := container.Metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown", "error", err)
		}
	}
	log.Info("stopped")
	return nil
}
