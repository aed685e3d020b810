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

	"github.com/jackc/pgx/v5"

	"github.com/displayintel/pipeline/internal/models"
)

// UpsertInsight writes the AI analysis for an email. The email_id unique
// constraint guarantees at most one row per email; re-application is a
// full replace.
func (s *Store) UpsertInsight(ctx context.Context, in *models.EmailInsight) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_insights (
			email_id, summary, intent, priority, quote_intent, quote_fields,
			technical_analysis, technical_specs, technical_risks,
			suggested_actions, missing_info_questions, draft_reply,
			raw_ai_output, model_metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (email_id) DO UPDATE SET
			summary                = EXCLUDED.summary,
			intent                 = EXCLUDED.intent,
			priority               = EXCLUDED.priority,
			quote_intent           = EXCLUDED.quote_intent,
			quote_fields           = EXCLUDED.quote_fields,
			technical_analysis     = EXCLUDED.technical_analysis,
			technical_specs        = EXCLUDED.technical_specs,
			technical_risks        = EXCLUDED.technical_risks,
			suggested_actions      = EXCLUDED.suggested_actions,
			missing_info_questions = EXCLUDED.missing_info_questions,
			draft_reply            = EXCLUDED.draft_reply,
			raw_ai_output          = EXCLUDED.raw_ai_output,
			model_metadata         = EXCLUDED.model_metadata
	`, in.EmailID, in.Summary, in.Intent, in.Priority, in.QuoteIntent,
		in.QuoteFields, in.TechnicalAnalysis, in.TechnicalSpecs,
		in.TechnicalRisks, in.SuggestedActions, in.MissingInfoQuestions,
		in.DraftReply, in.RawAIOutput, in.ModelMetadata)
	if err != nil {
		return fmt.Errorf("upsert insight for email %d: %w", in.EmailID, err)
	}
	return nil
}

// GetInsightByEmail retrieves the insight for an email, or nil.
func (s *Store) GetInsightByEmail(ctx context.Context, emailID int64) (*models.EmailInsight, error) {
	var in models.EmailInsight
	err := s.pool.QueryRow(ctx, `
		SELECT id, email_id, summary, intent, priority, quote_intent,
		       quote_fields, technical_analysis, technical_specs,
		       technical_risks, suggested_actions, missing_info_questions,
		       draft_reply, raw_ai_output, model_metadata, created_at
		FROM email_insights WHERE email_id = $1
	`, emailID).Scan(
		&in.ID, &in.EmailID, &in.Summary, &in.Intent, &in.Priority,
		&in.QuoteIntent, &in.QuoteFields, &in.TechnicalAnalysis,
		&in.TechnicalSpecs, &in.TechnicalRisks, &in.SuggestedActions,
		&in.MissingInfoQuestions, &in.DraftReply, &in.RawAIOutput,
		&in.ModelMetadata, &in.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpsertPart writes one extracted part keyed by
// (email_id, part_number, source_type). Rows whose attribution has moved
// past pending are never overwritten — a human decision outranks a re-run.
func (s *Store) UpsertPart(ctx context.Context, p *models.PartRecommendation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parts_recommended (
			email_id, part_number, source_type, description, quantity,
			where_found, evidence_snippet, recommended_at, attribution_status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email_id, part_number, source_type) DO UPDATE SET
			description      = EXCLUDED.description,
			quantity         = EXCLUDED.quantity,
			where_found      = EXCLUDED.where_found,
			evidence_snippet = EXCLUDED.evidence_snippet,
			recommended_at   = EXCLUDED.recommended_at
		WHERE parts_recommended.attribution_status = $10
	`, p.EmailID, p.PartNumber, p.SourceType, p.Description, p.Quantity,
		p.WhereFound, p.EvidenceSnippet, p.RecommendedAt, p.AttributionStatus,
		models.AttributionPending)
	if err != nil {
		return fmt.Errorf("upsert part %s for email %d: %w", p.PartNumber, p.EmailID, err)
	}
	return nil
}

// SetPartAttribution records a confirm/reject decision for a part.
func (s *Store) SetPartAttribution(ctx context.Context, id int64, status models.AttributionStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE parts_recommended SET attribution_status = $1 WHERE id = $2`, status, id)
	return err
}

// ListPartsByEmail returns all parts extracted from an email.
func (s *Store) ListPartsByEmail(ctx context.Context, emailID int64) ([]models.PartRecommendation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email_id, part_number, source_type, description, quantity,
		       where_found, evidence_snippet, recommended_at,
		       attribution_status, created_at
		FROM parts_recommended WHERE email_id = $1
		ORDER BY part_number, source_type
	`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []models.PartRecommendation
	for rows.Next() {
		var p models.PartRecommendation
		if err := rows.Scan(&p.ID, &p.EmailID, &p.PartNumber, &p.SourceType,
			&p.Description, &p.Quantity, &p.WhereFound, &p.EvidenceSnippet,
			&p.RecommendedAt, &p.AttributionStatus, &p.CreatedAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// InsertTaskIfAbsent creates a follow-up task unless an equivalent open
// task (same email, type, description, still pending) already exists.
// Returns whether a row was inserted.
func (s *Store) InsertTaskIfAbsent(ctx context.Context, t *models.Task) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (email_id, company_name, fsp_name, task_type, description, due_date, status)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM tasks
			WHERE email_id = $1 AND task_type = $4 AND description = $5 AND status = $8
		)
	`, t.EmailID, t.CompanyName, t.FSPName, t.TaskType, t.Description,
		t.DueDate, t.Status, models.TaskPending)
	if err != nil {
		return false, fmt.Errorf("insert task for email %d: %w", t.EmailID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteTask marks a task done.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2
	`, models.TaskCompleted, id)
	return err
}

// ListTasksByEmail returns the tasks harvested from an email.
func (s *Store) ListTasksByEmail(ctx context.Context, emailID int64) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email_id, company_name, fsp_name, task_type, description,
		       due_date, status, created_at, updated_at
		FROM tasks WHERE email_id = $1 ORDER BY due_date NULLS LAST, id
	`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.EmailID, &t.CompanyName, &t.FSPName,
			&t.TaskType, &t.Description, &t.DueDate, &t.Status,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
