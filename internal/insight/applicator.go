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

// Package insight applies structured analysis results to persisted
// emails. Application is idempotent: the insight row is keyed 1:1 by
// email, parts upsert on their composite key without resetting human
// attribution decisions, and tasks skip equivalent open duplicates. The
// processed_by_ai flag flips only after every write succeeded, so a
// partial failure leaves the email eligible for retry.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/displayintel/pipeline/internal/company"
	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
)

// minPartNumberLen filters noise the extractor sometimes reports as part
// numbers (bare quantities, "N/A", connector pin counts).
const minPartNumberLen = 4

// Store is the storage access the applicator needs.
type Store interface {
	UpsertInsight(ctx context.Context, in *models.EmailInsight) error
	UpsertPart(ctx context.Context, p *models.PartRecommendation) error
	InsertTaskIfAbsent(ctx context.Context, t *models.Task) (bool, error)
	MarkEmailProcessed(ctx context.Context, emailID int64) error
}

// Applicator applies one AnalysisResult to one email.
type Applicator struct {
	store Store

	// selfDomain identifies outgoing mail (the archive owner's own
	// domain). Outgoing emails get no draft reply and are the only
	// source of harvested commitments.
	selfDomain string

	now func() time.Time
}

// NewApplicator creates an applicator. selfDomain may be empty, in which
// case no email counts as outgoing.
func NewApplicator(st Store, selfDomain string) *Applicator {
	return &Applicator{
		store:      st,
		selfDomain: strings.ToLower(selfDomain),
		now:        time.Now,
	}
}

// Apply persists the analysis for an email. Safe to call repeatedly with
// the same result: the final state equals a single application.
func (a *Applicator) Apply(ctx context.Context, email *models.Email, res *models.AnalysisResult) error {
	outgoing := a.isOutgoing(email)

	if err := a.store.UpsertInsight(ctx, buildInsight(email, res, outgoing)); err != nil {
		return fmt.Errorf("apply insight: %w", err)
	}

	for _, p := range collectParts(email, res) {
		if err := a.store.UpsertPart(ctx, &p); err != nil {
			return fmt.Errorf("apply part %s: %w", p.PartNumber, err)
		}
	}

	if outgoing && res.Commitments.Detected {
		for _, c := range res.Commitments.Commitments {
			if !c.TaskType.Valid() {
				slog.Warn("dropping commitment with unknown task type",
					"email_id", email.ID,
					"task_type", c.TaskType,
				)
				continue
			}
			due := a.now().AddDate(0, 0, c.DueDateOffsetDays)
			inserted, err := a.store.InsertTaskIfAbsent(ctx, &models.Task{
				EmailID:     email.ID,
				CompanyName: counterpartyName(email),
				TaskType:    c.TaskType,
				Description: c.Description,
				DueDate:     &due,
				Status:      models.TaskPending,
			})
			if err != nil {
				return fmt.Errorf("apply task: %w", err)
			}
			if !inserted {
				slog.Debug("equivalent open task exists, skipping",
					"email_id", email.ID,
					"description", c.Description,
				)
			}
		}
	}

	// Flag last: everything above succeeded, so a retry of this email is
	// now a no-op rather than a necessity.
	if err := a.store.MarkEmailProcessed(ctx, email.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (a *Applicator) isOutgoing(email *models.Email) bool {
	return a.selfDomain != "" && parse.Domain(email.SenderEmail) == a.selfDomain
}

// buildInsight flattens the analysis result into the insight row.
func buildInsight(email *models.Email, res *models.AnalysisResult, outgoing bool) *models.EmailInsight {
	specs := make([]string, 0, len(res.Technical.Specs))
	for _, s := range res.Technical.Specs {
		specs = append(specs, fmt.Sprintf("%s: %s", s.Label, s.Value))
	}

	techSummary := "Application: " + res.Technical.Application
	if len(specs) > 0 {
		techSummary += "\n" + strings.Join(specs, "\n")
	}

	draft := res.DraftReply
	if outgoing {
		draft = "" // no reply to draft for our own mail
	}

	return &models.EmailInsight{
		EmailID:              email.ID,
		Summary:              res.Summary,
		Intent:               res.Intent,
		Priority:             res.Priority,
		QuoteIntent:          res.Quote.IsQuoteRequest,
		QuoteFields:          res.Quote.Fields,
		TechnicalAnalysis:    techSummary,
		TechnicalSpecs:       specs,
		TechnicalRisks:       res.Technical.Risks,
		SuggestedActions:     res.Actions.SuggestedActions,
		MissingInfoQuestions: res.Actions.MissingInfoQuestions,
		DraftReply:           draft,
		RawAIOutput:          rawOutput(res),
		ModelMetadata:        res.ModelMetadata,
	}
}

// collectParts flattens both part lists, filtering implausible part
// numbers and deduplicating on the composite key so one Apply never
// upserts the same key twice.
func collectParts(email *models.Email, res *models.AnalysisResult) []models.PartRecommendation {
	type key struct {
		pn     string
		source models.SourceType
	}
	seen := make(map[key]bool)
	var parts []models.PartRecommendation

	add := func(infos []models.PartInfo, source models.SourceType) {
		for _, info := range infos {
			pn := strings.TrimSpace(info.PartNumber)
			if len(pn) < minPartNumberLen {
				continue
			}
			k := key{pn: pn, source: source}
			if seen[k] {
				continue
			}
			seen[k] = true

			evidence := info.Snippet
			if evidence == "" {
				evidence = info.Context
			}
			parts = append(parts, models.PartRecommendation{
				EmailID:           email.ID,
				PartNumber:        pn,
				SourceType:        source,
				Description:       info.Context,
				Quantity:          info.Quantity,
				WhereFound:        "body",
				EvidenceSnippet:   evidence,
				RecommendedAt:     email.SentAt,
				AttributionStatus: models.AttributionPending,
			})
		}
	}

	add(res.Parts.CustomerProvided, models.SourceCustomerProvided)
	add(res.Parts.Recommended, models.SourceRecommended)
	return parts
}

// counterpartyName derives the client company label for a task from the
// first recipient's domain.
func counterpartyName(email *models.Email) string {
	if len(email.RecipientEmails) == 0 {
		return "Unknown"
	}
	domain := parse.Domain(email.RecipientEmails[0])
	if domain == "" {
		return "Unknown"
	}
	return company.DeriveName(domain)
}

// rawOutput preserves the full structured result for audit.
func rawOutput(res *models.AnalysisResult) map[string]any {
	data, err := json.Marshal(res)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
