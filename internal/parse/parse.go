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

// Package parse normalises raw email records before hashing, threading,
// and persistence. It extracts the identity headers (Message-ID,
// References, From/To/Cc), cleans text, and validates the fields the
// rest of the pipeline depends on.
package parse

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/displayintel/pipeline/internal/models"
)

// maxBodyLen caps stored body text; anything beyond it adds noise, not
// signal, to analysis.
const maxBodyLen = 50000

var (
	addressRe   = regexp.MustCompile(`[\w.\-+]+@[\w.\-]+\.\w+`)
	messageIDRe = regexp.MustCompile(`<[^<>\s]+>`)
	subjectRe   = regexp.MustCompile(`(?i)^(re|fwd|fw)\s*:\s*|^\[[^\]]*\]\s*`)
)

// ValidationError marks a record as malformed. The orchestrator skips
// such records and reports Reason in the import metadata.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s", e.Reason)
}

// NormalizedRecord is a RawRecord after header extraction and cleanup,
// ready for hashing and thread assignment.
type NormalizedRecord struct {
	MessageID        string
	References       []string // ancestor message IDs, oldest first
	ReferencesHeader string
	SenderEmail      string
	SenderName       string
	Recipients       []string
	CC               []string
	Subject          string
	Body             string
	HTMLBody         string
	SentAt           *time.Time
	TimestampMissing bool
	FolderPath       string
	Attachments      []models.Attachment
	Headers          map[string]string
}

// Normalize cleans and validates a raw record. A nil error means the
// record is safe to hash and persist; a *ValidationError means it must be
// skipped and counted.
func Normalize(raw models.RawRecord) (*NormalizedRecord, error) {
	headers := parseHeaders(raw.TransportHeaders)

	sender := firstAddress(headers["from"])
	if sender == "" {
		// Fall back to any address in the sender name field — some
		// exporters put "Name <addr>" there.
		sender = firstAddress(raw.SenderName)
	}
	if sender == "" {
		return nil, &ValidationError{Reason: "missing sender address"}
	}

	rec := &NormalizedRecord{
		MessageID:        firstMessageID(headers["message-id"]),
		References:       messageIDs(headers["references"]),
		ReferencesHeader: headers["references"],
		SenderEmail:      sender,
		SenderName:       CleanText(raw.SenderName),
		Recipients:       Addresses(headers["to"]),
		CC:               Addresses(headers["cc"]),
		Subject:          CleanText(raw.Subject),
		Body:             truncate(CleanText(raw.Body), maxBodyLen),
		HTMLBody:         truncate(CleanText(raw.HTMLBody), maxBodyLen),
		FolderPath:       raw.FolderPath,
		Attachments:      raw.Attachments,
		Headers:          headers,
	}

	if raw.SentAt == "" {
		rec.TimestampMissing = true
	} else {
		t, err := time.Parse(time.RFC3339, raw.SentAt)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("unparseable timestamp %q", raw.SentAt)}
		}
		utc := t.UTC()
		rec.SentAt = &utc
	}

	return rec, nil
}

// CleanText strips NUL bytes and surrounding whitespace.
func CleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// Addresses extracts all email addresses from a header value, lowercased
// and deduplicated, preserving first-seen order.
func Addresses(text string) []string {
	if text == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, m := range addressRe.FindAllString(text, -1) {
		addr := strings.ToLower(m)
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// Domain returns the lowercased domain of an email address, or "" when
// the address has none.
func Domain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// NormalizeSubject strips reply/forward prefixes and bracketed tags
// ("Re:", "Fwd:", "[EXTERNAL]"), case-folds, and trims, so replies and
// forwards of one conversation compare equal.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := subjectRe.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	return strings.ToLower(s)
}

// parseHeaders folds a raw transport-headers blob into a map keyed by
// lowercased header name. Continuation lines (leading whitespace) are
// appended to the previous header per RFC 5322 folding.
func parseHeaders(blob string) map[string]string {
	headers := make(map[string]string)
	if blob == "" {
		return headers
	}

	var lastKey string
	for _, line := range strings.Split(strings.ReplaceAll(blob, "\r\n", "\n"), "\n") {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey != "" {
				headers[lastKey] += " " + strings.TrimSpace(line)
			}
			continue
		}
		colon := strings.Index(line, ":")
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		headers[key] = CleanText(line[colon+1:])
		lastKey = key
	}
	return headers
}

// firstAddress returns the first email address in text, lowercased.
func firstAddress(text string) string {
	if addrs := Addresses(text); len(addrs) > 0 {
		return addrs[0]
	}
	return ""
}

// firstMessageID returns the first <...> token in a Message-ID value.
func firstMessageID(value string) string {
	return messageIDRe.FindString(value)
}

// messageIDs returns all <...> tokens in a References value, oldest first
// (the order RFC 5322 mandates for the References header).
func messageIDs(value string) []string {
	return messageIDRe.FindAllString(value, -1)
}

// truncate bounds s to at most n bytes, backing off to a rune boundary
// so the cut never produces invalid UTF-8 (Postgres TEXT rejects it).
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
