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

// Package store provides the Postgres persistence layer for the pipeline.
// Uniqueness constraints (dedupe_hash, company domain, the parts composite
// key) are the concurrency-control mechanism: every find-or-create is
// expressed as insert-attempt-then-resolve-conflict, never
// check-then-insert, so concurrent import runs converge on one row.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides CRUD operations for all pipeline tables in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool. It ensures the
// schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure pipeline schema: %w", err)
	}
	slog.Info("pipeline store initialised")
	return s, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS imports (
			id               UUID PRIMARY KEY,
			filename         TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'pending',
			emails_processed INTEGER NOT NULL DEFAULT 0,
			emails_skipped   INTEGER NOT NULL DEFAULT 0,
			metadata         JSONB NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS companies (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			domain     TEXT UNIQUE,
			industry   TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS emails (
			id                BIGSERIAL PRIMARY KEY,
			import_id         UUID REFERENCES imports(id),
			message_id        TEXT NOT NULL DEFAULT '',
			dedupe_hash       TEXT NOT NULL UNIQUE,
			thread_id         TEXT NOT NULL,
			references_header TEXT NOT NULL DEFAULT '',
			sender_email      TEXT NOT NULL,
			from_name         TEXT NOT NULL DEFAULT '',
			recipient_emails  TEXT[] NOT NULL DEFAULT '{}',
			cc_emails         TEXT[] NOT NULL DEFAULT '{}',
			subject           TEXT NOT NULL DEFAULT '',
			body              TEXT NOT NULL DEFAULT '',
			html_body         TEXT NOT NULL DEFAULT '',
			sent_at           TIMESTAMPTZ,
			received_at       TIMESTAMPTZ,
			timestamp_missing BOOLEAN NOT NULL DEFAULT FALSE,
			folder_path       TEXT NOT NULL DEFAULT '',
			attachments       JSONB NOT NULL DEFAULT '[]',
			transport_headers JSONB NOT NULL DEFAULT '{}',
			processed_by_ai   BOOLEAN NOT NULL DEFAULT FALSE,
			company_id        BIGINT REFERENCES companies(id),
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id);
		CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
		CREATE INDEX IF NOT EXISTS idx_emails_processed ON emails(processed_by_ai);

		CREATE TABLE IF NOT EXISTS email_insights (
			id                     BIGSERIAL PRIMARY KEY,
			email_id               BIGINT NOT NULL UNIQUE REFERENCES emails(id),
			summary                TEXT NOT NULL DEFAULT '',
			intent                 TEXT NOT NULL DEFAULT '',
			priority               TEXT NOT NULL DEFAULT '',
			quote_intent           BOOLEAN NOT NULL DEFAULT FALSE,
			quote_fields           JSONB NOT NULL DEFAULT '{}',
			technical_analysis     TEXT NOT NULL DEFAULT '',
			technical_specs        TEXT[] NOT NULL DEFAULT '{}',
			technical_risks        TEXT[] NOT NULL DEFAULT '{}',
			suggested_actions      TEXT[] NOT NULL DEFAULT '{}',
			missing_info_questions TEXT[] NOT NULL DEFAULT '{}',
			draft_reply            TEXT NOT NULL DEFAULT '',
			raw_ai_output          JSONB NOT NULL DEFAULT '{}',
			model_metadata         JSONB NOT NULL DEFAULT '{}',
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS parts_recommended (
			id                 BIGSERIAL PRIMARY KEY,
			email_id           BIGINT NOT NULL REFERENCES emails(id),
			part_number        TEXT NOT NULL,
			source_type        TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			quantity           TEXT NOT NULL DEFAULT '',
			where_found        TEXT NOT NULL DEFAULT '',
			evidence_snippet   TEXT NOT NULL DEFAULT '',
			recommended_at     TIMESTAMPTZ,
			attribution_status TEXT NOT NULL DEFAULT 'pending',
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (email_id, part_number, source_type)
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id           BIGSERIAL PRIMARY KEY,
			email_id     BIGINT NOT NULL REFERENCES emails(id),
			company_name TEXT NOT NULL DEFAULT '',
			fsp_name     TEXT NOT NULL DEFAULT '',
			task_type    TEXT NOT NULL,
			description  TEXT NOT NULL,
			due_date     DATE,
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS opportunities (
			id                   BIGSERIAL PRIMARY KEY,
			company_id           BIGINT NOT NULL REFERENCES companies(id),
			title                TEXT NOT NULL,
			status               TEXT NOT NULL DEFAULT 'lead',
			value                NUMERIC(14,2) NOT NULL DEFAULT 0,
			estimated_close_date DATE,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation. Callers treat those as "already exists", not as failures.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
