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

package models

import "time"

// SourceType distinguishes who introduced a part number into the
// conversation. Closed set: values outside these two are rejected at the
// boundary, not stored.
type SourceType string

const (
	SourceCustomerProvided SourceType = "customer_provided"
	SourceRecommended      SourceType = "recommended"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	return s == SourceCustomerProvided || s == SourceRecommended
}

// AttributionStatus is the lifecycle of a recommended part:
// pending → confirmed|rejected. Confirmed and rejected are set by a human
// or downstream process and must never be reset by re-analysis.
type AttributionStatus string

const (
	AttributionPending   AttributionStatus = "pending"
	AttributionConfirmed AttributionStatus = "confirmed"
	AttributionRejected  AttributionStatus = "rejected"
)

// TaskType classifies a harvested commitment.
type TaskType string

const (
	TaskFollowUp        TaskType = "follow_up"
	TaskWaitingOnClient TaskType = "waiting_on_client"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TaskFollowUp || t == TaskWaitingOnClient
}

// TaskStatus is the lifecycle of a follow-up task: pending → completed.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

// EmailInsight holds the AI-derived analysis for one email. At most one
// row exists per email; re-application replaces the row wholesale.
type EmailInsight struct {
	ID                   int64
	EmailID              int64
	Summary              string
	Intent               string
	Priority             string
	QuoteIntent          bool
	QuoteFields          map[string]string
	TechnicalAnalysis    string
	TechnicalSpecs       []string
	TechnicalRisks       []string
	SuggestedActions     []string
	MissingInfoQuestions []string
	DraftReply           string
	RawAIOutput          map[string]any
	ModelMetadata        map[string]any
	CreatedAt            time.Time
}

// PartRecommendation is one part number extracted from an email.
// Unique per (email, part number, source type).
type PartRecommendation struct {
	ID                int64
	EmailID           int64
	PartNumber        string
	SourceType        SourceType
	Description       string
	Quantity          string
	WhereFound        string
	EvidenceSnippet   string
	RecommendedAt     *time.Time
	AttributionStatus AttributionStatus
	CreatedAt         time.Time
}

// Task is a follow-up or waiting-on-client commitment harvested from an
// email.
type Task struct {
	ID          int64
	EmailID     int64
	CompanyName string
	FSPName     string
	TaskType    TaskType
	Description string
	DueDate     *time.Time
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
