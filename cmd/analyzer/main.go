// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// BlackChamber ICES — Analysis Service
//
// Entry point for the Go analysis worker. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL and Redis
//  3. Builds the lookup clients (reputation, WHOIS, geolocation, malware hashes)
//  4. Drains email events from the ingestion queue with a worker pool
//  5. Runs the analysis pipeline per email and persists the record
//  6. Serves a health endpoint and handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/analysis/internal/attachments"
	"github.com/bcem/analysis/internal/config"
	"github.com/bcem/analysis/internal/ipintel"
	"github.com/bcem/analysis/internal/lookupcache"
	"github.com/bcem/analysis/internal/pipeline"
	"github.com/bcem/analysis/internal/queue"
	"github.com/bcem/analysis/internal/store"
	"github.com/bcem/analysis/internal/urlintel"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting BlackChamber ICES analysis service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"workers", cfg.Workers,
		"fan_out", cfg.FanOutLimit,
		"cache_ttl_days", cfg.CacheTTLDays,
		"analysis_deadline", cfg.AnalysisDeadline,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	consumer := queue.NewConsumer(rdb, cfg.EmailsQueue)
	if err := consumer.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis", "queue", cfg.EmailsQueue)

	// --- Analysis Store (Postgres) ---
	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise analysis store", "error", err)
		os.Exit(1)
	}

	// --- Lookup cache ---
	cache := lookupcache.New(rdb, cfg.CacheTTLDays, cfg.LookupRate, cfg.LookupBurst)

	// --- Lookup clients ---
	httpClient := &http.Client{Timeout: cfg.LookupTimeout}

	urlAnalyzer := urlintel.New(urlintel.Options{
		HTTPClient:    httpClient,
		Certs:         urlintel.NewCertChecker(),
		Age:           urlintel.NewAgeClient(httpClient, cfg.Whois.Endpoint, cfg.Whois.APIKey, cache),
		Reputation:    urlintel.NewReputationClient(ctx, httpClient, cfg.Reputation, cache),
		Geo:           ipintel.NewGeoClient(httpClient, cfg.Geolocation.Endpoint, cache),
		Resolver:      ipintel.NewResolver(),
		Weights:       cfg.Weights,
		Thresholds:    cfg.Thresholds,
		HopLimit:      cfg.RedirectHopLimit,
		LookupTimeout: cfg.LookupTimeout,
	})

	attAnalyzer := attachments.New(
		attachments.NewMalwareClient(httpClient, cfg.MalwareHash, cache),
		cfg.Weights, cfg.Thresholds,
	)

	pipe := pipeline.New(pipeline.Options{
		URLs:        urlAnalyzer,
		Attachments: attAnalyzer,
		Hashes:      st,
		Weights:     cfg.Weights,
		Thresholds:  cfg.Thresholds,
		Deadline:    cfg.AnalysisDeadline,
		FanOutLimit: cfg.FanOutLimit,
		Logger:      logger,
	})

	// --- Worker pool draining the queue ---
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			runWorker(ctx, worker, consumer, pipe, st)
		}(i)
	}
	slog.Info("analysis workers started", "count", cfg.Workers)

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := consumer.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", healthPort())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop workers; in-flight analyses finish their deadline

		wg.Wait()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("analysis service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analysis service stopped")
}

// runWorker drains the queue until the context is cancelled. Persistence
// failures are logged and the event is dropped; the next delta sync from
// ingestion will republish anything that matters.
func runWorker(ctx context.Context, worker int, consumer *queue.Consumer, pipe *pipeline.Pipeline, st *store.Store) {
	logger := slog.Default().With("worker", worker)
	for {
		if ctx.Err() != nil {
			return
		}

		event, taskID, err := consumer.Next(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("queue receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		logger.Info("picked up email event",
			"task_id", taskID,
			"message_id", event.MessageID,
			"tenant", event.TenantAlias,
		)

		record := pipe.Run(ctx, event)

		if err := st.SaveRecord(ctx, record); err != nil {
			logger.Error("failed to persist analysis record",
				"message_id", record.MessageID,
				"run_id", record.RunID,
				"error", err,
			)
		}
	}
}

func healthPort() int {
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			return port
		}
	}
	return 8081
}
