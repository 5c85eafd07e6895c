// Package main provides the ytchat MCP server over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/ytchat/internal/app"
	"github.com/raphaelgruber/ytchat/internal/config"
	"github.com/raphaelgruber/ytchat/internal/server"
)

var version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs only go to the file.
	logger, cleanup := config.SetupStdioLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("ytchat-mcp starting",
		"version", version,
		"vector_backend", cfg.VectorBackend,
		"embed_model", cfg.EmbedModel,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := app.New(ctx, cfg, logger, app.Options{Version: version})
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := svc.Close(context.Background()); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	srv := server.New(version, svc.Metrics, logger)
	srv.RegisterTools(svc.Tools)

	logger.Info("server ready, awaiting connections")
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
