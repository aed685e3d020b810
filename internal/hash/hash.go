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

// Package hash computes the content fingerprint that serves as the sole
// identity key for an email. The hash never depends on which import a
// record arrived in, so the same email re-imported from a different file
// collides correctly. A collision between semantically different emails
// is indistinguishable from a duplicate; that risk is accepted rather
// than detected.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/displayintel/pipeline/internal/parse"
)

// bodySnippetLen bounds how much body text feeds the hash. Enough to
// distinguish messages, small enough that trailing quoted history and
// signatures do not destabilise identity.
const bodySnippetLen = 200

// missingTimestamp stands in for an absent sent time so that records
// with and without timestamps hash into disjoint spaces.
const missingTimestamp = "missing"

// Fingerprint returns the hex-encoded SHA-256 dedupe hash for a
// normalised record.
func Fingerprint(rec *parse.NormalizedRecord) string {
	recipients := append([]string(nil), rec.Recipients...)
	sort.Strings(recipients)

	sentAt := missingTimestamp
	if rec.SentAt != nil {
		sentAt = rec.SentAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	sender := rec.SenderEmail
	if sender == "" {
		sender = "unknown"
	}

	raw := strings.Join([]string{
		strings.ToLower(sender),
		strings.Join(recipients, ","),
		parse.NormalizeSubject(rec.Subject),
		sentAt,
		bodySnippet(rec.Body),
	}, "|")

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// bodySnippet collapses all whitespace runs to single spaces before
// truncating, so line-ending and indentation differences between source
// archives hash identically.
func bodySnippet(body string) string {
	collapsed := strings.Join(strings.Fields(body), " ")
	runes := []rune(collapsed)
	if len(runes) > bodySnippetLen {
		runes = runes[:bodySnippetLen]
	}
	return string(runes)
}
