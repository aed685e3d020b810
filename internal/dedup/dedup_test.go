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

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
)

// TestFilter_IsNew verifies the SETNX seen-filter semantics.
func TestFilter_IsNew(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := NewFilter(rdb)
	ctx := context.Background()

	first, err := f.IsNew(ctx, "abc123")
	require.NoError(t, err)
	require.True(t, first, "first sighting must be new")

	second, err := f.IsNew(ctx, "abc123")
	require.NoError(t, err)
	require.False(t, second, "second sighting must not be new")

	require.Greater(t, mr.TTL(keyPrefix+"abc123"), time.Duration(0), "seen key must expire")

	other, err := f.IsNew(ctx, "def456")
	require.NoError(t, err)
	require.True(t, other, "distinct hashes are independent")
}

// mockLookup implements EmailLookup over a fixed map.
type mockLookup struct {
	emails map[string]*models.Email
}

func (m *mockLookup) GetEmailByHash(_ context.Context, hash string) (*models.Email, error) {
	return m.emails[hash], nil
}

// TestDecider_New verifies classification when no email with the hash
// exists.
func TestDecider_New(t *testing.T) {
	d := NewDecider(&mockLookup{emails: map[string]*models.Email{}})

	dec, err := d.Decide(context.Background(), "h1", &parse.NormalizedRecord{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != OutcomeNew {
		t.Errorf("outcome = %v, want new", dec.Outcome)
	}
	if dec.Existing != nil {
		t.Error("Existing must be nil for a new record")
	}
}

// TestDecider_Duplicate verifies that a record carrying nothing the
// stored row lacks is a duplicate.
func TestDecider_Duplicate(t *testing.T) {
	stored := &models.Email{
		ID:        7,
		MessageID: "<a@x>",
		HTMLBody:  "<p>hi</p>",
	}
	d := NewDecider(&mockLookup{emails: map[string]*models.Email{"h1": stored}})

	dec, err := d.Decide(context.Background(), "h1", &parse.NormalizedRecord{
		MessageID: "<a@x>",
		HTMLBody:  "<p>hi</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %v, want duplicate", dec.Outcome)
	}
	if dec.Existing != stored {
		t.Error("Existing must reference the stored row")
	}
}

// TestDecider_Update verifies the update cases: each previously-missing
// field the incoming record can fill flips the outcome.
func TestDecider_Update(t *testing.T) {
	cases := []struct {
		name     string
		existing models.Email
		rec      parse.NormalizedRecord
	}{
		{
			name:     "message id",
			existing: models.Email{},
			rec:      parse.NormalizedRecord{MessageID: "<a@x>"},
		},
		{
			name:     "references",
			existing: models.Email{},
			rec:      parse.NormalizedRecord{ReferencesHeader: "<r@x>"},
		},
		{
			name:     "html body",
			existing: models.Email{},
			rec:      parse.NormalizedRecord{HTMLBody: "<p>hi</p>"},
		},
		{
			name:     "folder path",
			existing: models.Email{},
			rec:      parse.NormalizedRecord{FolderPath: "/Sent"},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			existing := c.existing
			d := NewDecider(&mockLookup{emails: map[string]*models.Email{"h1": &existing}})

			dec, err := d.Decide(context.Background(), "h1", &c.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if dec.Outcome != OutcomeUpdate {
				t.Errorf("outcome = %v, want update", dec.Outcome)
			}
		})
	}
}

// TestDecider_TimestampAloneIsNoUpdate verifies that a timestamp by
// itself never triggers an update: the sent time feeds the fingerprint,
// so same-hash records always agree on it already.
func TestDecider_TimestampAloneIsNoUpdate(t *testing.T) {
	sent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	existing := &models.Email{ID: 7, TimestampMissing: true}
	d := NewDecider(&mockLookup{emails: map[string]*models.Email{"h1": existing}})

	dec, err := d.Decide(context.Background(), "h1", &parse.NormalizedRecord{SentAt: &sent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %v, want duplicate", dec.Outcome)
	}
}

// TestOutcome_String covers the outcome labels used in logs and metadata.
func TestOutcome_String(t *testing.T) {
	if OutcomeNew.String() != "new" || OutcomeDuplicate.String() != "duplicate" || OutcomeUpdate.String() != "update" {
		t.Error("unexpected outcome labels")
	}
}
