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

package parse

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/displayintel/pipeline/internal/models"
)

// TestNormalize_FullRecord verifies header extraction on a well-formed
// record.
func TestNormalize_FullRecord(t *testing.T) {
	raw := models.RawRecord{
		Subject:    "Re: Quote for displays",
		Body:       "Hi, see attached.",
		SenderName: "Jane Roe",
		SentAt:     "2026-03-15T10:30:00Z",
		FolderPath: "/Inbox",
		TransportHeaders: "From: Jane Roe <jane@acme.com>\n" +
			"To: sales@displayco.com, Bob <bob@displayco.com>\n" +
			"Cc: jane@acme.com\n" +
			"Message-ID: <abc@acme.com>\n" +
			"References: <root@acme.com>\n" +
			" <mid@acme.com>\n",
	}

	rec, err := Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.SenderEmail != "jane@acme.com" {
		t.Errorf("sender = %q, want jane@acme.com", rec.SenderEmail)
	}
	if rec.MessageID != "<abc@acme.com>" {
		t.Errorf("message id = %q, want <abc@acme.com>", rec.MessageID)
	}
	// The folded References continuation line must be joined.
	if len(rec.References) != 2 {
		t.Fatalf("references = %v, want 2 entries", rec.References)
	}
	if rec.References[0] != "<root@acme.com>" || rec.References[1] != "<mid@acme.com>" {
		t.Errorf("references = %v", rec.References)
	}
	if len(rec.Recipients) != 2 {
		t.Errorf("recipients = %v, want 2 entries", rec.Recipients)
	}
	if rec.Recipients[0] != "sales@displayco.com" {
		t.Errorf("first recipient = %q", rec.Recipients[0])
	}
	if rec.SentAt == nil || rec.TimestampMissing {
		t.Error("expected a parsed timestamp")
	}
}

// TestNormalize_MissingSender verifies that a record with no sender
// address anywhere is rejected with a ValidationError.
func TestNormalize_MissingSender(t *testing.T) {
	_, err := Normalize(models.RawRecord{Subject: "hello", Body: "x"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Reason != "missing sender address" {
		t.Errorf("reason = %q", verr.Reason)
	}
}

// TestNormalize_SenderFromNameField verifies the fallback to an address
// embedded in the sender name field.
func TestNormalize_SenderFromNameField(t *testing.T) {
	rec, err := Normalize(models.RawRecord{
		SenderName: "Jane Roe <Jane@Acme.com>",
		Subject:    "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SenderEmail != "jane@acme.com" {
		t.Errorf("sender = %q, want jane@acme.com", rec.SenderEmail)
	}
}

// TestNormalize_Timestamps verifies the three timestamp cases: valid,
// absent, and unparseable.
func TestNormalize_Timestamps(t *testing.T) {
	base := models.RawRecord{TransportHeaders: "From: a@b.com\n"}

	withTime := base
	withTime.SentAt = "2026-01-02T03:04:05+02:00"
	rec, err := Normalize(withTime)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SentAt == nil {
		t.Fatal("expected a parsed timestamp")
	}
	if rec.SentAt.Hour() != 1 {
		t.Errorf("sent_at not normalised to UTC: %v", rec.SentAt)
	}

	missing := base
	rec, err = Normalize(missing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.TimestampMissing || rec.SentAt != nil {
		t.Error("expected TimestampMissing for empty sent_at")
	}

	bad := base
	bad.SentAt = "last tuesday"
	_, err = Normalize(bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad timestamp, got %v", err)
	}
}

// TestNormalizeSubject verifies prefix and tag stripping.
func TestNormalizeSubject(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Re: Quote", "quote"},
		{"RE:  Quote", "quote"},
		{"Fwd: Re: Quote", "quote"},
		{"FW: quote", "quote"},
		{"[EXTERNAL] Re: Quote", "quote"},
		{"Quote", "quote"},
		{"", ""},
		{"Rewrite plan", "rewrite plan"}, // "Re" only strips with a colon
	}
	for _, c := range cases {
		if got := NormalizeSubject(c.in); got != c.want {
			t.Errorf("NormalizeSubject(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestAddresses verifies extraction, lowercasing, and dedup.
func TestAddresses(t *testing.T) {
	got := Addresses("Jane <JANE@acme.com>, bob@other.io, jane@acme.com")
	if len(got) != 2 {
		t.Fatalf("addresses = %v, want 2", got)
	}
	if got[0] != "jane@acme.com" || got[1] != "bob@other.io" {
		t.Errorf("addresses = %v", got)
	}

	if Addresses("no address here") != nil {
		t.Error("expected nil for text without addresses")
	}
}

// TestDomain verifies domain extraction edge cases.
func TestDomain(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"jane@Acme.com", "acme.com"},
		{"no-at-sign", ""},
		{"trailing@", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := Domain(c.in); got != c.want {
			t.Errorf("Domain(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestNormalize_TruncateKeepsValidUTF8 verifies that cutting an
// oversized body never splits a multi-byte rune — invalid UTF-8 would be
// rejected by the database and fail the whole import.
func TestNormalize_TruncateKeepsValidUTF8(t *testing.T) {
	// "é" is two bytes; place it so the byte limit lands inside it.
	body := strings.Repeat("a", maxBodyLen-1) + "é tail beyond the limit"

	rec, err := Normalize(models.RawRecord{
		Body:             body,
		HTMLBody:         body,
		TransportHeaders: "From: a@b.com\n",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !utf8.ValidString(rec.Body) {
		t.Error("truncated body is not valid UTF-8")
	}
	if !utf8.ValidString(rec.HTMLBody) {
		t.Error("truncated html body is not valid UTF-8")
	}
	if len(rec.Body) > maxBodyLen {
		t.Errorf("body length = %d, want <= %d", len(rec.Body), maxBodyLen)
	}
	if !strings.HasSuffix(rec.Body, "a") {
		t.Errorf("body should end before the split rune, got tail %q", rec.Body[len(rec.Body)-4:])
	}
}

// TestCleanText verifies NUL stripping and trimming.
func TestCleanText(t *testing.T) {
	if got := CleanText("  a\x00b  "); got != "ab" {
		t.Errorf("CleanText = %q, want ab", got)
	}
}
