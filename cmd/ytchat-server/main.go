// Package main provides the ytchat HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/ytchat/internal/app"
	"github.com/raphaelgruber/ytchat/internal/config"
	"github.com/raphaelgruber/ytchat/internal/server"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	wipe := flag.Bool("wipe", false, "delete all indexed chunks on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("starting ytchat-server", "version", version, "port", cfg.Port)

	initCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	svc, err := app.New(initCtx, cfg, logger, app.Options{Version: version})
	cancel()
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := svc.Close(ctx); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	if *wipe || os.Getenv("YTCHAT_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := svc.Wipe(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe vector store", "error", err)
			return 1
		}
	}

	// A recovered panic still answers its request. With FatalOnPanic the
	// process then shuts down and exits non-zero.
	fatal := make(chan any, 1)
	llmModel, embedModel, embedDim := svc.ModelNames()
	handler := server.NewHTTPHandler(server.HTTPConfig{
		Engine: svc.Engine,
		Index:  svc.Index,
		Jobs:   svc.Jobs,
		Models: server.ModelInfo{
			LLM:            llmModel,
			Embedding:      embedModel,
			EmbedDimension: embedDim,
		},
		Metrics:      svc.Metrics,
		Logger:       logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
		OnPanic: func(p any) {
			if !cfg.FatalOnPanic {
				return
			}
			select {
			case fatal <- p:
			default:
			}
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.CompletionTimeout*time.Duration(max(cfg.MaxIterations, 1)) + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "url", fmt.Sprintf("http://localhost:%d/", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serveErr:
		logger.Error("server error", "error", err)
		return 1
	case p := <-fatal:
		logger.Error("fatal panic, shutting down", "panic", p)
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return 1
	}

	logger.Info("server stopped")
	return exitCode
}
