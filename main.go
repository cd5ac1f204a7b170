package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lesson-observer-go/analysis"
	"lesson-observer-go/checklist"
	"lesson-observer-go/config"
	"lesson-observer-go/db"
	"lesson-observer-go/gemini"
	"lesson-observer-go/handlers"
	"lesson-observer-go/logger"
	"lesson-observer-go/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open history store: %v", err)
	}
	defer closeStore()

	checkStoredData(ctx, store)

	if cfg.Gemini.APIKey == "" {
		logger.Log.Warn("GEMINI_API_KEY is not set; requests must carry an X-Api-Key header")
	}
	provider := gemini.NewProvider(cfg.Gemini)
	analyzer := analysis.NewAnalyzer(provider, store)

	apiHandler := handlers.NewAPIHandler(analyzer, store)
	router := handlers.NewRouter(cfg, apiHandler)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Log.Infof("Starting server on %s (model %s, history backend %s)", srv.Addr, cfg.Gemini.Model, cfg.History.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorf("Server shutdown failed: %v", err)
	}
}

// openStore picks the history backend named in config
func openStore(ctx context.Context, cfg *config.Config) (db.Store, func(), error) {
	switch cfg.History.Backend {
	case config.BackendMemory:
		logger.Log.Infof("Using in-memory history (limit %d)", cfg.History.Limit)
		return db.NewMemoryStore(cfg.History.Limit), func() {}, nil
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := db.InitializeRedisClient(connectCtx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Log.Warnf("Error closing Redis client: %v", err)
			}
		}
		return db.NewRedisService(client, cfg.History.Limit), closeFn, nil
	}
}

// checkStoredData logs what the store already holds: history size and
// which methods have a checklist override.
func checkStoredData(ctx context.Context, store db.Store) {
	count, err := store.CountAnalyses(ctx)
	if err != nil {
		logger.Log.Warnf("Could not count stored analyses: %v", err)
	} else {
		logger.Log.Infof("Found %d analyses in history", count)
	}

	for _, method := range []models.Method{models.MethodKids, models.MethodTeens, models.MethodAdults} {
		tpl, err := store.GetTemplate(ctx, method)
		switch {
		case err != nil:
			logger.Log.Warnf("Could not read checklist override for %s: %v", method, err)
		case tpl != nil:
			logger.Log.Infof("Checklist for %s: stored override with %d items", method, len(tpl.Items()))
		default:
			logger.Log.Infof("Checklist for %s: built-in with %d items", method, len(checklist.Builtin(method).Items()))
		}
	}
}
