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

const companyColumns = `id, name, COALESCE(domain, ''), industry, created_at, updated_at`

// UpsertCompanyByDomain finds or creates the canonical company for a
// domain in one statement. Concurrent resolution of the same new domain
// converges on one row via the domain uniqueness constraint. Industry is
// backfilled only when the existing row has none.
//
// When the derived name collides with a different company (two domains
// sharing a label), the caller retries with a disambiguated name; the
// name-unique violation surfaces here unchanged for that purpose.
func (s *Store) UpsertCompanyByDomain(ctx context.Context, name, domain, industry string) (*models.Company, error) {
	var c models.Company
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (name, domain, industry)
		VALUES ($1, $2, $3)
		ON CONFLICT (domain) DO UPDATE SET
			industry   = CASE WHEN companies.industry = '' THEN EXCLUDED.industry ELSE companies.industry END,
			updated_at = NOW()
		RETURNING `+companyColumns+`
	`, name, domain, industry).Scan(
		&c.ID, &c.Name, &c.Domain, &c.Industry, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert company %s: %w", domain, err)
	}
	return &c, nil
}

// GetCompanyByDomain retrieves a company by its domain, or nil.
func (s *Store) GetCompanyByDomain(ctx context.Context, domain string) (*models.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE domain = $1`, domain)
	return scanCompany(row)
}

// GetCompanyByName retrieves a company by its unique name, or nil.
func (s *Store) GetCompanyByName(ctx context.Context, name string) (*models.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE name = $1`, name)
	return scanCompany(row)
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Industry, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
