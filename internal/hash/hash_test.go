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

package hash

import (
	"testing"
	"time"

	"github.com/displayintel/pipeline/internal/parse"
)

func baseRecord() *parse.NormalizedRecord {
	sent := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	return &parse.NormalizedRecord{
		SenderEmail: "jane@acme.com",
		Recipients:  []string{"sales@displayco.com", "bob@displayco.com"},
		Subject:     "Quote for displays",
		Body:        "Hi,\nplease quote 500 units of the 7-inch panel.",
		SentAt:      &sent,
	}
}

// TestFingerprint_Stable verifies that the same content always hashes
// the same, independent of any import context.
func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint(baseRecord())
	b := Fingerprint(baseRecord())
	if a != b {
		t.Errorf("hash not stable: %s != %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

// TestFingerprint_RecipientOrder verifies that recipient ordering does
// not change identity.
func TestFingerprint_RecipientOrder(t *testing.T) {
	a := baseRecord()
	b := baseRecord()
	b.Recipients = []string{"bob@displayco.com", "sales@displayco.com"}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("recipient order changed the hash")
	}
}

// TestFingerprint_WhitespaceInsensitive verifies that line-ending and
// indentation differences between archive exports hash identically.
func TestFingerprint_WhitespaceInsensitive(t *testing.T) {
	a := baseRecord()
	b := baseRecord()
	b.Body = "Hi, please   quote\r\n500 units of the\t7-inch panel."

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("whitespace variation changed the hash")
	}
}

// TestFingerprint_SubjectPrefixes verifies that a "Re:" copy of the same
// content collides with the original.
func TestFingerprint_SubjectPrefixes(t *testing.T) {
	a := baseRecord()
	b := baseRecord()
	b.Subject = "RE: Quote for displays"

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("reply prefix changed the hash")
	}
}

// TestFingerprint_DistinguishesContent verifies that different bodies,
// senders, and timestamps produce different hashes.
func TestFingerprint_DistinguishesContent(t *testing.T) {
	base := Fingerprint(baseRecord())

	body := baseRecord()
	body.Body = "Completely different message."
	if Fingerprint(body) == base {
		t.Error("different body collided")
	}

	sender := baseRecord()
	sender.SenderEmail = "eve@other.io"
	if Fingerprint(sender) == base {
		t.Error("different sender collided")
	}

	later := baseRecord()
	shifted := later.SentAt.Add(time.Minute)
	later.SentAt = &shifted
	if Fingerprint(later) == base {
		t.Error("different timestamp collided")
	}
}

// TestFingerprint_MissingTimestamp verifies that records with and without
// a timestamp never collide.
func TestFingerprint_MissingTimestamp(t *testing.T) {
	withTime := baseRecord()
	without := baseRecord()
	without.SentAt = nil
	without.TimestampMissing = true

	if Fingerprint(withTime) == Fingerprint(without) {
		t.Error("missing timestamp collided with present timestamp")
	}

	// But two timestamp-less copies of the same content still collide.
	again := baseRecord()
	again.SentAt = nil
	again.TimestampMissing = true
	if Fingerprint(without) != Fingerprint(again) {
		t.Error("two timestamp-less copies did not collide")
	}
}

// TestFingerprint_BodySnippetBound verifies that changes beyond the
// hashed snippet do not change identity.
func TestFingerprint_BodySnippetBound(t *testing.T) {
	long := make([]byte, 0, 600)
	for len(long) < 600 {
		long = append(long, 'a')
	}

	a := baseRecord()
	a.Body = string(long) + " tail one"
	b := baseRecord()
	b.Body = string(long) + " tail two"

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("content beyond the snippet bound changed the hash")
	}
}
