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

// Package models defines the data structures shared across the pipeline.
package models

import "time"

// RawRecord is a flat email record as produced by an upstream mailbox
// parser. Header extraction, address normalisation, and timestamp
// validation all happen downstream in the parse package.
type RawRecord struct {
	Subject          string       `json:"subject"`
	Body             string       `json:"body"`
	HTMLBody         string       `json:"html_body,omitempty"`
	SenderName       string       `json:"sender_name,omitempty"`
	TransportHeaders string       `json:"transport_headers,omitempty"`
	SentAt           string       `json:"sent_at,omitempty"` // RFC3339 or empty
	FolderPath       string       `json:"folder_path,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// Attachment holds metadata about a file attached to an email. Content
// bytes are never ingested, only described.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Index    int    `json:"index"`
}

// Email is one normalised, deduplicated message as persisted.
//
// DedupeHash is the single source of truth for identity: two records with
// the same hash are the same email. After creation only ProcessedByAI,
// CompanyID, ThreadID (on thread merges), and previously-missing fields
// are ever mutated.
type Email struct {
	ID               int64
	ImportID         string
	MessageID        string
	DedupeHash       string
	ThreadID         string
	ReferencesHeader string
	SenderEmail      string
	FromName         string
	RecipientEmails  []string
	CCEmails         []string
	Subject          string
	Body             string
	HTMLBody         string
	SentAt           *time.Time
	ReceivedAt       *time.Time
	TimestampMissing bool
	FolderPath       string
	Attachments      []Attachment
	TransportHeaders map[string]string
	ProcessedByAI    bool
	CompanyID        *int64
	CreatedAt        time.Time
}
