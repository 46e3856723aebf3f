package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/focusquest/internal/config"
	"example.com/focusquest/internal/outbox"
)

// maxPassesPerTick bounds how many full batches one tick may replay.
const maxPassesPerTick = 20

func main() {
	cfg := config.Load()
	logger := log.New(log.Writer(), "[dlqmanager] ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	if cfg.DLQBatchSize <= 0 {
		cfg.DLQBatchSize = 50
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()

	logger.Printf("replaying dead-lettered events (interval=%s batch=%d maxRetries=%d)",
		cfg.DLQPollInterval, cfg.DLQBatchSize, cfg.DLQMaxRetries)

	// Events left over from a previous run are replayed without waiting a full interval.
	drain(ctx, logger, manager, cfg.DLQBatchSize)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-ticker.C:
			drain(ctx, logger, manager, cfg.DLQBatchSize)
		}
	}
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}
}

// drain replays batches until one comes back short, so a backlog of reconcile requests
// is not spread over many intervals.
func drain(ctx context.Context, logger *log.Logger, manager *outbox.DLQManager, batchSize int) {
	total := 0
	for pass := 0; pass < maxPassesPerTick && ctx.Err() == nil; pass++ {
		requeued, err := manager.RunOnce(ctx, batchSize)
		total += requeued
		if err != nil {
			logger.Printf("replay pass failed: %v", err)
			break
		}
		if requeued < batchSize {
			break
		}
	}
	if total > 0 {
		logger.Printf("requeued %d events", total)
	}
}
