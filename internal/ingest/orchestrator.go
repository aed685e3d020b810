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

// Package ingest drives one import run: normalise, deduplicate, resolve
// the company, assign the thread, persist, and hand off for enrichment,
// record by record. One orchestrator instance owns one Import's state;
// concurrent runs coordinate only through the store's uniqueness
// constraints, so re-running the same archive is always safe.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/displayintel/pipeline/internal/company"
	"github.com/displayintel/pipeline/internal/dedup"
	"github.com/displayintel/pipeline/internal/hash"
	"github.com/displayintel/pipeline/internal/models"
	"github.com/displayintel/pipeline/internal/parse"
	"github.com/displayintel/pipeline/internal/thread"
)

// progressEvery controls how often running counts are persisted, so a
// crashed run still reports committed work.
const progressEvery = 50

// Store is the storage surface one import run needs. Satisfied by
// *store.Store.
type Store interface {
	CreateImport(ctx context.Context, filename string, metadata map[string]any) (*models.Import, error)
	MarkImportProcessing(ctx context.Context, id string) error
	FinishImport(ctx context.Context, imp *models.Import) error
	SaveImportProgress(ctx context.Context, id string, processed, skipped int) error

	InsertEmail(ctx context.Context, e *models.Email) (int64, bool, error)
	FillMissingFields(ctx context.Context, id int64, in *models.Email) error
	GetEmailByHash(ctx context.Context, hash string) (*models.Email, error)
	GetEmailByMessageID(ctx context.Context, messageID string) (*models.Email, error)
	ThreadSize(ctx context.Context, threadID string) (int, error)
	ReassignThread(ctx context.Context, fromThread, toThread string) (int64, error)
	UpsertCompanyByDomain(ctx context.Context, name, domain, industry string) (*models.Company, error)
}

// Publisher hands a newly persisted email to the enrichment pipeline.
// Implemented by queue.Publisher.
type Publisher interface {
	PublishEmail(ctx context.Context, email *models.Email) error
}

// Source yields raw records for one archive. Next returns io.EOF when
// the archive is exhausted.
type Source interface {
	Next() (models.RawRecord, error)
}

// Config holds dependencies and tuning for an orchestrator.
type Config struct {
	Store     Store
	Publisher Publisher // optional; nil disables enrichment hand-off

	FreeMailDomains []string
	SubjectWindow   time.Duration

	// Transient storage errors are retried this many times with
	// exponential backoff before the whole run fails.
	RetryAttempts int
	RetryBase     time.Duration
}

// Orchestrator runs import batches.
type Orchestrator struct {
	store         Store
	publisher     Publisher
	freeMail      []string
	subjectWindow time.Duration
	retryAttempts int
	retryBase     time.Duration
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Orchestrator{
		store:         cfg.Store,
		publisher:     cfg.Publisher,
		freeMail:      cfg.FreeMailDomains,
		subjectWindow: cfg.SubjectWindow,
		retryAttempts: attempts,
		retryBase:     base,
	}
}

// run is the per-import working state.
type run struct {
	imp      *models.Import
	decider  *dedup.Decider
	resolver *company.Resolver
	threader *thread.Reconstructor
	skips    map[string]int // reason -> count
	updated  int
}

// Run executes one import of the named archive. Every input record is
// either persisted, explicitly skipped and counted, or the run ends
// failed — no silent loss. Already-committed emails survive failure and
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, filename string, src Source) (*models.Import, error) {
	imp, err := o.store.CreateImport(ctx, filename, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("create import: %w", err)
	}

	slog.Info("import started", "import_id", imp.ID, "filename", filename)

	r := &run{
		imp:      imp,
		decider:  dedup.NewDecider(o.store),
		resolver: company.NewResolver(o.store, o.freeMail),
		threader: thread.NewReconstructor(o.store, o.subjectWindow),
		skips:    make(map[string]int),
	}

	started := false
	for {
		if err := ctx.Err(); err != nil {
			return o.fail(imp, r, fmt.Errorf("import cancelled: %w", err))
		}

		raw, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return o.fail(imp, r, fmt.Errorf("read record: %w", err))
		}

		if !started {
			if err := o.withRetry(ctx, func() error {
				return o.store.MarkImportProcessing(ctx, imp.ID)
			}); err != nil {
				return o.fail(imp, r, err)
			}
			imp.Status = models.ImportProcessing
			started = true
		}

		if err := o.processRecord(ctx, r, raw); err != nil {
			return o.fail(imp, r, err)
		}

		if (imp.EmailsProcessed+imp.EmailsSkipped)%progressEvery == 0 {
			if err := o.store.SaveImportProgress(ctx, imp.ID, imp.EmailsProcessed, imp.EmailsSkipped); err != nil {
				slog.Warn("saving import progress failed", "import_id", imp.ID, "error", err)
			}
		}
	}

	imp.Status = models.ImportCompleted
	r.fillMetadata()
	if err := o.withRetry(ctx, func() error {
		return o.store.FinishImport(ctx, imp)
	}); err != nil {
		return imp, err
	}

	slog.Info("import completed",
		"import_id", imp.ID,
		"processed", imp.EmailsProcessed,
		"skipped", imp.EmailsSkipped,
	)
	return imp, nil
}

// processRecord runs the full per-record pipeline. A malformed record is
// skipped and counted; storage errors bubble up after retries.
func (o *Orchestrator) processRecord(ctx context.Context, r *run, raw models.RawRecord) error {
	rec, err := parse.Normalize(raw)
	if err != nil {
		var verr *parse.ValidationError
		if errors.As(err, &verr) {
			r.skip(verr.Reason)
			slog.Debug("record skipped", "import_id", r.imp.ID, "reason", verr.Reason)
			return nil
		}
		return err
	}

	fingerprint := hash.Fingerprint(rec)

	var decision dedup.Decision
	if err := o.withRetry(ctx, func() error {
		var derr error
		decision, derr = r.decider.Decide(ctx, fingerprint, rec)
		return derr
	}); err != nil {
		return err
	}

	switch decision.Outcome {
	case dedup.OutcomeDuplicate:
		r.skip("duplicate")
		return nil

	case dedup.OutcomeUpdate:
		if err := o.withRetry(ctx, func() error {
			return o.store.FillMissingFields(ctx, decision.Existing.ID, recordEmail(r.imp.ID, rec, fingerprint, ""))
		}); err != nil {
			return err
		}
		r.updated++
		r.imp.EmailsProcessed++
		return nil
	}

	// New email: resolve company and thread before the insert so the row
	// lands complete.
	var comp *models.Company
	if err := o.withRetry(ctx, func() error {
		var cerr error
		comp, cerr = r.resolver.Resolve(ctx, rec.SenderEmail)
		return cerr
	}); err != nil {
		return err
	}

	var threadID string
	if err := o.withRetry(ctx, func() error {
		var terr error
		threadID, terr = r.threader.Assign(ctx, rec, fingerprint)
		return terr
	}); err != nil {
		return err
	}

	email := recordEmail(r.imp.ID, rec, fingerprint, threadID)
	if comp != nil {
		email.CompanyID = &comp.ID
	}

	var (
		emailID  int64
		inserted bool
	)
	if err := o.withRetry(ctx, func() error {
		var ierr error
		emailID, inserted, ierr = o.store.InsertEmail(ctx, email)
		return ierr
	}); err != nil {
		return err
	}

	if !inserted {
		// A concurrent run won the insert race after our dedupe check.
		r.skip("duplicate")
		return nil
	}

	email.ID = emailID
	r.imp.EmailsProcessed++

	if o.publisher != nil {
		if err := o.publisher.PublishEmail(ctx, email); err != nil {
			// The enrichment sweep picks unpublished emails up later via
			// the processed_by_ai index; ingestion does not fail on this.
			slog.Warn("enrichment publish failed",
				"import_id", r.imp.ID,
				"email_id", emailID,
				"error", err,
			)
		}
	}
	return nil
}

// fail finalises an import as failed, preserving partial counts.
func (o *Orchestrator) fail(imp *models.Import, r *run, cause error) (*models.Import, error) {
	slog.Error("import failed",
		"import_id", imp.ID,
		"processed", imp.EmailsProcessed,
		"skipped", imp.EmailsSkipped,
		"error", cause,
	)
	imp.Status = models.ImportFailed
	r.fillMetadata()
	imp.Metadata["failure"] = cause.Error()

	// Best effort with a fresh context: the run's context may already be
	// cancelled, but the terminal status should still land.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.FinishImport(ctx, imp); err != nil {
		slog.Error("recording import failure failed", "import_id", imp.ID, "error", err)
	}
	return imp, cause
}

// withRetry retries transient storage errors with exponential backoff.
// Context cancellation ends retrying immediately.
func (o *Orchestrator) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < o.retryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < o.retryAttempts-1 {
			delay := o.retryBase << attempt
			slog.Warn("storage operation failed, retrying",
				"attempt", attempt+1,
				"delay", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(delay):
			}
		}
	}
	return err
}

func (r *run) skip(reason string) {
	r.skips[reason]++
	r.imp.EmailsSkipped++
}

func (r *run) fillMetadata() {
	if len(r.skips) > 0 {
		reasons := make(map[string]any, len(r.skips))
		for reason, n := range r.skips {
			reasons[reason] = n
		}
		r.imp.Metadata["skip_reasons"] = reasons
	}
	if r.updated > 0 {
		r.imp.Metadata["emails_updated"] = r.updated
	}
}

// recordEmail builds the persistable email from a normalised record.
func recordEmail(importID string, rec *parse.NormalizedRecord, fingerprint, threadID string) *models.Email {
	return &models.Email{
		ImportID:         importID,
		MessageID:        rec.MessageID,
		DedupeHash:       fingerprint,
		ThreadID:         threadID,
		ReferencesHeader: rec.ReferencesHeader,
		SenderEmail:      rec.SenderEmail,
		FromName:         rec.SenderName,
		RecipientEmails:  rec.Recipients,
		CCEmails:         rec.CC,
		Subject:          rec.Subject,
		Body:             rec.Body,
		HTMLBody:         rec.HTMLBody,
		SentAt:           rec.SentAt,
		TimestampMissing: rec.TimestampMissing,
		FolderPath:       rec.FolderPath,
		Attachments:      rec.Attachments,
		TransportHeaders: rec.Headers,
	}
}
