package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/phonego-ryong/holyDayBot/internal/config"
	"github.com/phonego-ryong/holyDayBot/internal/parser"
	"github.com/phonego-ryong/holyDayBot/internal/reconciler"
	"github.com/phonego-ryong/holyDayBot/internal/server"
	"github.com/phonego-ryong/holyDayBot/internal/slack"
	"github.com/phonego-ryong/holyDayBot/internal/storage"
)

func main() {
	// Local development convenience; in deployment the env is injected.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	slog.Info("Starting holyDayBot server...")
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, cfg.ProjectID, cfg.DayOfCollection, cfg.DayBeforeCollection)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	messenger := slack.New(cfg.SlackAPIBaseURL, cfg.SlackBotToken, cfg.SlackMaxRetries)
	p := parser.New(cfg.AnchorHour, cfg.AnchorMinute)
	rec := reconciler.New(store, messenger)
	h := server.New(cfg.SlackSigningSecret, cfg.AnnouncerUserID, p, rec, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", h.HandleEvents)
	mux.HandleFunc("/rosters", h.HandleRosters)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigCh:
			slog.Info("Received signal, shutting down gracefully...", "signal", sig)
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}
