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

// Package dedup decides whether an incoming record is new, a duplicate,
// or an update to an email already persisted. The Postgres dedupe_hash
// uniqueness constraint is the source of truth; a Redis SET with TTL
// serves as a cheap pre-check when concurrent import runs overlap.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
)

const (
	// DefaultTTL is how long the seen-filter remembers a hash. Long
	// enough to cover overlapping import runs of the same archive.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "intel:seen:"
)

// Filter tracks which dedupe hashes have already been handled in-flight.
// It is advisory only — losing Redis state costs duplicate store lookups,
// never duplicate rows.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a seen-filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{rdb: rdb, ttl: DefaultTTL}
}

// IsNew returns true if the hash has NOT been seen before. If true, the
// hash is marked as seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, hash string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, keyPrefix+hash, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Outcome classifies an incoming record against the persisted set.
type Outcome int

const (
	// OutcomeNew means no email with this hash exists yet.
	OutcomeNew Outcome = iota
	// OutcomeDuplicate means the record carries nothing the stored row
	// lacks; it is skipped and counted.
	OutcomeDuplicate
	// OutcomeUpdate means the record resolves previously-missing fields
	// on the stored row.
	OutcomeUpdate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Decision is the result of classifying one record.
type Decision struct {
	Outcome  Outcome
	Existing *models.Email // nil for OutcomeNew
}

// EmailLookup is the single store access path the decider needs.
type EmailLookup interface {
	GetEmailByHash(ctx context.Context, hash string) (*models.Email, error)
}

// Decider classifies incoming records by dedupe hash.
//
// A hash collision between semantically different emails is
// indistinguishable from a duplicate and is treated as one. This is an
// accepted risk of content-hash identity, not a detected condition.
type Decider struct {
	store EmailLookup
}

// NewDecider creates a dedup decider over the given store.
func NewDecider(store EmailLookup) *Decider {
	return &Decider{store: store}
}

// Decide looks the hash up and classifies the record. The lookup uses
// the dedupe_hash unique index; actual insertion still goes through
// insert-on-conflict so a race between two runs stays safe.
func (d *Decider) Decide(ctx context.Context, hash string, rec *parse.NormalizedRecord) (Decision, error) {
	existing, err := d.store.GetEmailByHash(ctx, hash)
	if err != nil {
		return Decision{}, fmt.Errorf("dedupe lookup %s: %w", hash, err)
	}
	if existing == nil {
		return Decision{Outcome: OutcomeNew}, nil
	}
	if suppliesNewInformation(existing, rec) {
		return Decision{Outcome: OutcomeUpdate, Existing: existing}, nil
	}
	return Decision{Outcome: OutcomeDuplicate, Existing: existing}, nil
}

// suppliesNewInformation reports whether rec fills a field the stored row
// is missing. Only fields outside the fingerprint qualify: the sent
// timestamp feeds the hash, so two records with the same hash always
// agree on it and a timestamp can never be newly supplied here.
func suppliesNewInformation(existing *models.Email, rec *parse.NormalizedRecord) bool {
	switch {
	case existing.MessageID == "" && rec.MessageID != "":
		return true
	case existing.ReferencesHeader == "" && rec.ReferencesHeader != "":
		return true
	case existing.HTMLBody == "" && rec.HTMLBody != "":
		return true
	case existing.FolderPath == "" && rec.FolderPath != "":
		return true
	}
	return false
}
