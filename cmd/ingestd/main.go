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

// Display Intel — Ingestion Service
//
// Entry point for the import worker. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL and Redis, bootstraps the schema
//  3. Consumes import jobs (archive file paths) from the imports queue
//  4. Runs each archive through the ingestion orchestrator
//  5. Serves a health check endpoint
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/displayintel/pipeline/internal/config"
	"github.com/displayintel/pipeline/internal/ingest"
	"github.com/displayintel/pipeline/internal/queue"
	"github.com/displayintel/pipeline/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Display Intel ingestion service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	st, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
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

	publisher := queue.NewPublisher(rdb, cfg.EnrichQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Orchestrator ---
	orch := ingest.New(ingest.Config{
		Store:           st,
		Publisher:       publisher,
		FreeMailDomains: cfg.FreeMailDomains,
		SubjectWindow:   cfg.SubjectWindow,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBase:       cfg.RetryBase,
	})

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("health server error", "error", err)
		}
	}()

	// --- Import Job Loop ---
	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			res, err := rdb.BRPop(ctx, 5*time.Second, cfg.ImportQueue).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("import queue pop failed", "error", err)
				time.Sleep(time.Second)
				continue
			}

			path := res[1]
			runImport(ctx, orch, path)
		}
	}()

	slog.Info("ingestion service ready", "import_queue", cfg.ImportQueue)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop the job loop; committed emails stay committed.

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	rdb.Close()
	pgPool.Close()
	slog.Info("ingestion service stopped")
}

// runImport executes one archive import end to end. Failures are
// recorded on the Import row; the loop keeps serving the next job.
func runImport(ctx context.Context, orch *ingest.Orchestrator, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("cannot open archive", "path", path, "error", err)
		return
	}
	defer f.Close()

	imp, err := orch.Run(ctx, filepath.Base(path), ingest.NewJSONLSource(f))
	if err != nil {
		slog.Error("import run failed", "path", path, "error", err)
		return
	}
	slog.Info("import run finished",
		"import_id", imp.ID,
		"status", imp.Status,
		"processed", imp.EmailsProcessed,
		"skipped", imp.EmailsSkipped,
	)
}
