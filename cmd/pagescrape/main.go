package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/pagescrape/api"
	"github.com/use-agent/pagescrape/api/handler"
	"github.com/use-agent/pagescrape/catalog"
	"github.com/use-agent/pagescrape/config"
	"github.com/use-agent/pagescrape/scraper"
	"github.com/use-agent/pagescrape/webhook"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), config.Usage())
	}
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("pagescrape starting",
		"version", handler.Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Initialise scraper (launches browser) ────────────────────
	sc := scraper.New(cfg.Browser, cfg.Scraper)
	if err := sc.Initialize(); err != nil {
		slog.Error("failed to initialise scraper", "error", err)
		os.Exit(1)
	}

	// ── 4. Load catalog ─────────────────────────────────────────────
	cat := catalog.NewWithBuiltins()
	if cfg.Catalog.Dir != "" {
		n, err := cat.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			slog.Error("failed to load catalog", "dir", cfg.Catalog.Dir, "error", err)
			_ = sc.Shutdown()
			os.Exit(1)
		}
		slog.Info("catalog loaded", "dir", cfg.Catalog.Dir, "files", n)
	}
	slog.Info("scrapers available", "names", cat.Names())

	// ── 5. Setup router ─────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hooks := webhook.NewSender()
	router := api.NewRouter(ctx, api.Deps{
		Scraper:   sc,
		Catalog:   cat,
		Webhooks:  hooks,
		Config:    cfg,
		StartTime: time.Now(),
	})

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
	}

	// In-flight scrapes are detached from their requests, so give them
	// the configured drain window before the browser goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	drained := make(chan struct{})
	go func() {
		hooks.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		slog.Warn("webhook deliveries still pending at shutdown")
	}

	if err := sc.Shutdown(); err != nil {
		slog.Error("browser shutdown failed", "error", err)
	}
	slog.Info("pagescrape stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
