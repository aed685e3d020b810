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

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/displayintel/pipeline/internal/models"
)

// CreateImport records the start of a batch-ingestion run in pending state.
func (s *Store) CreateImport(ctx context.Context, filename string, metadata map[string]any) (*models.Import, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	imp := &models.Import{
		ID:       uuid.New().String(),
		Filename: filename,
		Status:   models.ImportPending,
		Metadata: metadata,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO imports (id, filename, status, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, imp.ID, imp.Filename, imp.Status, imp.Metadata).Scan(&imp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create import: %w", err)
	}
	return imp, nil
}

// MarkImportProcessing transitions a pending import to processing. A
// no-op for imports already past pending, so entering processing happens
// at most once.
func (s *Store) MarkImportProcessing(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE imports SET status = $1
		WHERE id = $2 AND status = $3
	`, models.ImportProcessing, id, models.ImportPending)
	return err
}

// FinishImport writes final counts, metadata, and a terminal status.
// Imports already in a terminal state are left untouched.
func (s *Store) FinishImport(ctx context.Context, imp *models.Import) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE imports
		SET status = $1, emails_processed = $2, emails_skipped = $3, metadata = $4
		WHERE id = $5 AND status NOT IN ($6, $7)
	`, imp.Status, imp.EmailsProcessed, imp.EmailsSkipped, imp.Metadata,
		imp.ID, models.ImportCompleted, models.ImportFailed)
	if err != nil {
		return fmt.Errorf("finish import %s: %w", imp.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import %s is already terminal", imp.ID)
	}
	return nil
}

// SaveImportProgress persists running counts without changing status, so
// a crashed run still reports the work it committed.
func (s *Store) SaveImportProgress(ctx context.Context, id string, processed, skipped int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE imports SET emails_processed = $1, emails_skipped = $2
		WHERE id = $3 AND status NOT IN ($4, $5)
	`, processed, skipped, id, models.ImportCompleted, models.ImportFailed)
	return err
}

// GetImport retrieves one import run, or nil when absent.
func (s *Store) GetImport(ctx context.Context, id string) (*models.Import, error) {
	var (
		imp      models.Import
		created  time.Time
		metadata map[string]any
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, filename, status, emails_processed, emails_skipped, metadata, created_at
		FROM imports WHERE id = $1
	`, id).Scan(&imp.ID, &imp.Filename, &imp.Status, &imp.EmailsProcessed,
		&imp.EmailsSkipped, &metadata, &created)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get import %s: %w", id, err)
	}
	imp.Metadata = metadata
	imp.CreatedAt = created
	return &imp, nil
}
