package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ent0n29/checklist/internal/config"
	"github.com/ent0n29/checklist/internal/httpapi"
	"github.com/ent0n29/checklist/internal/observability"
	"github.com/ent0n29/checklist/internal/policy"
	"github.com/ent0n29/checklist/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := tasks.NewStore(ctx, tasks.StoreConfig{
		Mode:        cfg.TaskStoreMode,
		Key:         cfg.TaskStorageKey,
		FilePath:    cfg.TaskFilePath,
		RedisURL:    cfg.RedisURL,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatalf("task store init failed: %v", err)
	}
	defer store.Close()
	target, _ := policy.RedactConnString(storeTarget(cfg, store.Name()))
	log.Printf("task store: %s %s (key %q)", store.Name(), target, cfg.TaskStorageKey)

	manager := tasks.NewManager(tasks.Config{
		SaveTimeout:      cfg.TaskSaveTimeout,
		LoadTimeout:      cfg.TaskLoadTimeout,
		SubscriberBuffer: cfg.SubscriberBuffer,
	})
	manager.SetLogger(log.Default())
	manager.SetPersistHook(func(op string, err error, elapsed time.Duration) {
		metrics.ObservePersist(op, persistResult(err), elapsed)
	})
	manager.SetStore(store)

	loaded := manager.Load(ctx)
	counts := manager.Counts()
	metrics.ObserveTaskCounts(counts.Total, counts.Completed)
	log.Printf("loaded %d tasks (%d completed)", loaded, counts.Completed)

	api := httpapi.New(cfg, manager, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	// Closes websocket streams and writes the last pending change.
	if err := manager.Close(shutdownCtx); err != nil {
		log.Printf("final task save failed: %v", err)
	}

	log.Printf("shutdown complete")
}

func storeTarget(cfg config.Config, backend string) string {
	switch backend {
	case "postgres":
		return cfg.DatabaseURL
	case "redis":
		return cfg.RedisURL
	case "file":
		return cfg.TaskFilePath
	default:
		return ""
	}
}

func persistResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tasks.ErrStaleVersion):
		return "stale"
	default:
		return "error"
	}
}
