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

// Display Intel — Enrichment Worker
//
// Consumes enrichment tasks published by the ingestion service, submits
// each email to the external analysis service, and applies the
// structured result idempotently. A periodic sweep over unprocessed
// emails recovers any task lost from the queue; Email and Insight
// lifecycles stay decoupled, keyed only by email identity.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/displayintel/pipeline/internal/analysis"
	"github.com/displayintel/pipeline/internal/config"
	"github.com/displayintel/pipeline/internal/dedup"
	"github.com/displayintel/pipeline/internal/insight"
	"github.com/displayintel/pipeline/internal/queue"
	"github.com/displayintel/pipeline/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting Display Intel enrichment worker")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Analysis.BaseURL == "" {
		slog.Error("ANALYSIS_BASE_URL is required for the enrichment worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
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

	// --- Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	filter := dedup.NewFilter(rdb)
	consumer := queue.NewConsumer(rdb, cfg.EnrichQueue)

	// --- Analysis client (OAuth2 client credentials) ---
	httpClient := (&clientcredentials.Config{
		ClientID:     cfg.Analysis.ClientID,
		ClientSecret: cfg.Analysis.ClientSecret,
		TokenURL:     cfg.Analysis.TokenURL,
		Scopes:       cfg.Analysis.Scopes,
	}).Client(ctx)
	client := analysis.NewClient(httpClient, cfg.Analysis.BaseURL)

	applicator := insight.NewApplicator(st, cfg.SelfDomain)

	worker := &worker{
		store:      st,
		filter:     filter,
		client:     client,
		applicator: applicator,
	}

	// --- Queue Loop ---
	go func() {
		for ctx.Err() == nil {
			task, err := consumer.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("enrichment queue pop failed", "error", err)
				time.Sleep(time.Second)
				continue
			}
			if task == nil {
				continue
			}
			worker.process(ctx, task.EmailID)
		}
	}()

	// --- Periodic Sweep ---
	// Safety net for tasks dropped from the queue: anything still
	// unprocessed gets retried, deduplicated through the seen-filter so
	// overlapping sweeps don't hammer the analysis service.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				worker.sweep(ctx, cfg.SweepBatch)
			}
		}
	}()

	slog.Info("enrichment worker ready",
		"queue", cfg.EnrichQueue,
		"sweep_interval", cfg.SweepInterval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	slog.Info("enrichment worker stopped")
}

// worker ties the enrichment dependencies together.
type worker struct {
	store      *store.Store
	filter     *dedup.Filter
	client     *analysis.Client
	applicator *insight.Applicator
}

// process analyses and enriches one email. Already-processed emails are
// a no-op, so replayed tasks are harmless.
func (w *worker) process(ctx context.Context, emailID int64) {
	email, err := w.store.GetEmailByID(ctx, emailID)
	if err != nil {
		slog.Error("load email failed", "email_id", emailID, "error", err)
		return
	}
	if email == nil || email.ProcessedByAI {
		return
	}

	result, err := w.client.Analyze(ctx, email)
	if err != nil {
		slog.Error("analysis call failed", "email_id", emailID, "error", err)
		return
	}
	if result == nil {
		return
	}

	if err := w.applicator.Apply(ctx, email, result); err != nil {
		// processed_by_ai stays false; the sweep retries this email.
		slog.Error("applying analysis failed", "email_id", emailID, "error", err)
		return
	}

	slog.Info("email enriched",
		"email_id", emailID,
		"intent", result.Intent,
		"priority", result.Priority,
	)
}

// sweep retries unprocessed emails that fell off the queue.
func (w *worker) sweep(ctx context.Context, batch int) {
	emails, err := w.store.ListUnprocessed(ctx, batch)
	if err != nil {
		slog.Error("sweep listing failed", "error", err)
		return
	}
	for _, email := range emails {
		isNew, err := w.filter.IsNew(ctx, "enrich:"+email.DedupeHash)
		if err != nil {
			slog.Warn("sweep dedup check failed", "error", err)
		} else if !isNew {
			continue // attempted recently
		}
		w.process(ctx, email.ID)
	}
	if len(emails) > 0 {
		slog.Info("enrichment sweep finished", "candidates", len(emails))
	}
}
