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

const emailColumns = `
	id, import_id, message_id, dedupe_hash, thread_id, references_header,
	sender_email, from_name, recipient_emails, cc_emails, subject, body,
	html_body, sent_at, received_at, timestamp_missing, folder_path,
	attachments, transport_headers, processed_by_ai, company_id, created_at`

// InsertEmail persists a new email keyed by its dedupe hash. When another
// run already inserted the same hash, the existing row wins and inserted
// is false — the conflict is a signal, not an error.
func (s *Store) InsertEmail(ctx context.Context, e *models.Email) (id int64, inserted bool, err error) {
	err = s.pool.QueryRow(ctx, `
		INSERT INTO emails (
			import_id, message_id, dedupe_hash, thread_id, references_header,
			sender_email, from_name, recipient_emails, cc_emails, subject,
			body, html_body, sent_at, received_at, timestamp_missing,
			folder_path, attachments, transport_headers, company_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (dedupe_hash) DO NOTHING
		RETURNING id
	`, e.ImportID, e.MessageID, e.DedupeHash, e.ThreadID, e.ReferencesHeader,
		e.SenderEmail, e.FromName, e.RecipientEmails, e.CCEmails, e.Subject,
		e.Body, e.HTMLBody, e.SentAt, e.ReceivedAt, e.TimestampMissing,
		e.FolderPath, e.Attachments, e.TransportHeaders, e.CompanyID,
	).Scan(&id)

	if err == pgx.ErrNoRows {
		// Lost the race (or a duplicate slipped past the pre-check).
		existing, err := s.GetEmailByHash(ctx, e.DedupeHash)
		if err != nil {
			return 0, false, err
		}
		if existing == nil {
			return 0, false, fmt.Errorf("email %s neither inserted nor found", e.DedupeHash)
		}
		return existing.ID, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert email: %w", err)
	}
	return id, true, nil
}

// GetEmailByHash retrieves an email by its dedupe hash, or nil when absent.
func (s *Store) GetEmailByHash(ctx context.Context, hash string) (*models.Email, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE dedupe_hash = $1`, hash)
	return scanEmail(row)
}

// GetEmailByID retrieves an email by primary key, or nil when absent.
func (s *Store) GetEmailByID(ctx context.Context, id int64) (*models.Email, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = $1`, id)
	return scanEmail(row)
}

// GetEmailByMessageID retrieves the earliest-seen email carrying the
// given transport message ID, or nil. Message IDs can be reused across
// mailboxes, so the earliest row breaks the tie.
func (s *Store) GetEmailByMessageID(ctx context.Context, messageID string) (*models.Email, error) {
	if messageID == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE message_id = $1 ORDER BY created_at, id LIMIT 1`,
		messageID)
	return scanEmail(row)
}

// ListEmailsByThread returns all emails in one conversation.
func (s *Store) ListEmailsByThread(ctx context.Context, threadID string) ([]models.Email, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE thread_id = $1 ORDER BY sent_at NULLS LAST, id`,
		threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmails(rows)
}

// ListUnprocessed returns emails not yet analysed, oldest first.
func (s *Store) ListUnprocessed(ctx context.Context, limit int) ([]models.Email, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE processed_by_ai = FALSE ORDER BY id LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmails(rows)
}

// ThreadSize counts the emails currently assigned to a thread.
func (s *Store) ThreadSize(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM emails WHERE thread_id = $1`, threadID).Scan(&n)
	return n, err
}

// ReassignThread moves every email from one thread to another. Used when
// a late-arriving message reveals that two threads are one conversation.
func (s *Store) ReassignThread(ctx context.Context, fromThread, toThread string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE emails SET thread_id = $1 WHERE thread_id = $2`, toThread, fromThread)
	if err != nil {
		return 0, fmt.Errorf("reassign thread %s -> %s: %w", fromThread, toThread, err)
	}
	return tag.RowsAffected(), nil
}

// FillMissingFields updates only the fields of an existing email that
// are currently empty with values from a richer duplicate record.
// timestamp_missing clears only when the incoming record supplies a
// timestamp.
func (s *Store) FillMissingFields(ctx context.Context, id int64, in *models.Email) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE emails SET
			message_id        = CASE WHEN message_id = '' THEN $1 ELSE message_id END,
			references_header = CASE WHEN references_header = '' THEN $2 ELSE references_header END,
			html_body         = CASE WHEN html_body = '' THEN $3 ELSE html_body END,
			sent_at           = COALESCE(sent_at, $4),
			timestamp_missing = timestamp_missing AND $5,
			folder_path       = CASE WHEN folder_path = '' THEN $6 ELSE folder_path END
		WHERE id = $7
	`, in.MessageID, in.ReferencesHeader, in.HTMLBody, in.SentAt,
		in.TimestampMissing, in.FolderPath, id)
	if err != nil {
		return fmt.Errorf("fill missing fields for email %d: %w", id, err)
	}
	return nil
}

// SetEmailCompany attaches a resolved company to an email.
func (s *Store) SetEmailCompany(ctx context.Context, emailID, companyID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE emails SET company_id = $1 WHERE id = $2`, companyID, emailID)
	return err
}

// MarkEmailProcessed flags an email as analysed. Called only after every
// insight, part, and task write for the email has succeeded.
func (s *Store) MarkEmailProcessed(ctx context.Context, emailID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE emails SET processed_by_ai = TRUE WHERE id = $1`, emailID)
	return err
}

// scanEmail scans a single row into an Email.
func scanEmail(row pgx.Row) (*models.Email, error) {
	var e models.Email
	err := row.Scan(
		&e.ID, &e.ImportID, &e.MessageID, &e.DedupeHash, &e.ThreadID,
		&e.ReferencesHeader, &e.SenderEmail, &e.FromName, &e.RecipientEmails,
		&e.CCEmails, &e.Subject, &e.Body, &e.HTMLBody, &e.SentAt,
		&e.ReceivedAt, &e.TimestampMissing, &e.FolderPath, &e.Attachments,
		&e.TransportHeaders, &e.ProcessedByAI, &e.CompanyID, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// collectEmails scans multiple rows into a slice of Emails.
func collectEmails(rows pgx.Rows) ([]models.Email, error) {
	var emails []models.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}
	return emails, rows.Err()
}
