package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conorfennell/persist/internal/config"
	"github.com/conorfennell/persist/internal/deck"
	"github.com/conorfennell/persist/internal/review"
	"github.com/conorfennell/persist/internal/storage"
	"github.com/conorfennell/persist/internal/web"
)

func main() {
	flags := config.Flags()
	configPath := flags.String("config", "", "Path to a YAML config file")
	addSource := flags.String("add_source", "", "Register a deck source (local path or git URL) and exit")
	listSources := flags.Bool("list_sources", false, "List registered deck sources and exit")
	syncDecks := flags.Bool("sync", false, "Sync all deck sources before serving")
	if err := flags.Parse(os.Args[1:]); err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Database opened", "path", cfg.DBPath)

	decks := deck.NewManager(db, cfg.ReposDir, cfg.CardDelimiter, cfg.FrontBackDelimiter)

	if *addSource != "" {
		if _, err := decks.AddSource(*addSource); err != nil {
			slog.Error("Failed to add deck source", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listSources {
		sources, err := db.GetAllSources()
		if err != nil {
			slog.Error("Failed to list deck sources", "error", err)
			os.Exit(1)
		}
		for _, s := range sources {
			fmt.Printf("%d\t%s\t%s\n", s.ID, s.Type, s.Path)
		}
		return
	}

	if *syncDecks {
		if err := decks.SyncAll(); err != nil {
			slog.Error("Deck sync failed", "error", err)
			os.Exit(1)
		}
	}

	engine := review.NewEngine(db)
	shutdown := make(chan struct{}, 1)
	server := web.NewServer(db, engine, cfg.CardDelimiter, cfg.FrontBackDelimiter, shutdown)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving API", "addr", cfg.Listen)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-shutdown:
		slog.Info("Shutdown requested over the API")
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Failed to drain server", "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
