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

	"github.com/displayintel/pipeline/internal/models"
)

// CreateOpportunity opens a sales-pipeline record for a company in the
// lead state. Opportunities are written by downstream consumers, never
// by the ingestion pipeline itself.
func (s *Store) CreateOpportunity(ctx context.Context, companyID int64, title string, value float64, estClose *time.Time) (*models.Opportunity, error) {
	o := &models.Opportunity{
		CompanyID:          companyID,
		Title:              title,
		Status:             models.OpportunityLead,
		Value:              value,
		EstimatedCloseDate: estClose,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (company_id, title, status, value, estimated_close_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, o.CompanyID, o.Title, o.Status, o.Value, o.EstimatedCloseDate,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create opportunity: %w", err)
	}
	return o, nil
}

// AdvanceOpportunity moves an opportunity along
// lead → qualified → closed_won|closed_lost. The current status is part
// of the WHERE clause so a concurrent transition loses cleanly instead of
// skipping a state.
func (s *Store) AdvanceOpportunity(ctx context.Context, id int64, from, to models.OpportunityStatus) error {
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("opportunity %d: illegal transition %s -> %s", id, from, to)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("advance opportunity %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("opportunity %d is no longer %s", id, from)
	}
	return nil
}

// ListOpportunitiesByCompany returns a company's pipeline records.
func (s *Store) ListOpportunitiesByCompany(ctx context.Context, companyID int64) ([]models.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, company_id, title, status, value, estimated_close_date,
		       created_at, updated_at
		FROM opportunities WHERE company_id = $1 ORDER BY created_at
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		var o models.Opportunity
		if err := rows.Scan(&o.ID, &o.CompanyID, &o.Title, &o.Status,
			&o.Value, &o.EstimatedCloseDate, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}
