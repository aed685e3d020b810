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

// Package company resolves sender addresses to canonical organisations.
// The domain is the identity signal: free-mail domains never become
// companies, and concurrent resolution of one new domain converges on a
// single row through the domain uniqueness constraint rather than any
// pre-check.
package company

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
	"github.com/displayintel/pipeline/internal/store"
)

// DefaultFreeMailDomains are consumer providers excluded from company
// creation. Extendable via configuration.
var DefaultFreeMailDomains = []string{
	"gmail.com", "googlemail.com", "yahoo.com", "yahoo.co.uk",
	"outlook.com", "hotmail.com", "live.com", "msn.com",
	"aol.com", "icloud.com", "me.com", "protonmail.com",
	"proton.me", "gmx.com", "gmx.net", "mail.com", "zoho.com",
	"qq.com", "163.com", "126.com",
}

// Store is the storage access the resolver needs.
type Store interface {
	UpsertCompanyByDomain(ctx context.Context, name, domain, industry string) (*models.Company, error)
}

// Resolver maps sender domains to company rows.
type Resolver struct {
	store    Store
	freeMail map[string]bool
}

// NewResolver creates a resolver. An empty freeMailDomains list selects
// DefaultFreeMailDomains.
func NewResolver(st Store, freeMailDomains []string) *Resolver {
	if len(freeMailDomains) == 0 {
		freeMailDomains = DefaultFreeMailDomains
	}
	free := make(map[string]bool, len(freeMailDomains))
	for _, d := range freeMailDomains {
		free[strings.ToLower(d)] = true
	}
	return &Resolver{store: st, freeMail: free}
}

// Resolve maps a sender address to its company, creating one on first
// sighting of a qualifying business domain. Returns nil (and no error)
// when the address has no domain or the domain is a free-mail provider —
// those emails stay unattributed by policy.
func (r *Resolver) Resolve(ctx context.Context, senderEmail string) (*models.Company, error) {
	domain := parse.Domain(senderEmail)
	if domain == "" || r.freeMail[domain] {
		return nil, nil
	}

	name := DeriveName(domain)
	c, err := r.store.UpsertCompanyByDomain(ctx, name, domain, "")
	if err == nil {
		return c, nil
	}
	if !store.IsUniqueViolation(err) {
		return nil, err
	}

	// The domain upsert cannot conflict on domain, so this is a name
	// collision: a different domain already derived the same label.
	// Disambiguate with the domain itself and retry once.
	c, err = r.store.UpsertCompanyByDomain(ctx, fmt.Sprintf("%s (%s)", name, domain), domain, "")
	if err != nil {
		return nil, fmt.Errorf("resolve company for %s: %w", domain, err)
	}
	return c, nil
}

// FreeMail reports whether a domain is excluded from company creation.
func (r *Resolver) FreeMail(domain string) bool {
	return r.freeMail[strings.ToLower(domain)]
}

// DeriveName builds a display name from a domain: its first label,
// capitalised ("acme.com" → "Acme").
func DeriveName(domain string) string {
	label := domain
	if i := strings.Index(domain, "."); i > 0 {
		label = domain[:i]
	}
	runes := []rune(label)
	if len(runes) > 0 {
		runes[0] = unicode.ToUpper(runes[0])
	}
	return string(runes)
}
