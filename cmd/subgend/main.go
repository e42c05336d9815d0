// Command subgend runs the subtitle generation daemon: the HTTP API,
// webhook listeners, and the Azure transcription pipeline.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"subgen/internal/config"
	"subgen/internal/daemon"
	"subgen/internal/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		_ = d.Close()
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("subgend shutting down")
	if err := d.Close(); err != nil {
		logger.Warn("close daemon", logging.Error(err))
	}
}
