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

// AnalysisResult is the structured output of the external analysis
// service for one email. The pipeline only applies it; producing it is
// someone else's job.
//
// The JSON shape is the contract with the analysis workers — field names
// must not change without coordinating with that service.
type AnalysisResult struct {
	Summary        string             `json:"summary"`
	Intent         string             `json:"intent"`   // quote_request | technical_support | order_status | intro | spam | update
	Priority       string             `json:"priority"` // P0 | P1 | P2
	PriorityReason string             `json:"priority_reason,omitempty"`
	Quote          QuoteAnalysis      `json:"quote_analysis"`
	Parts          PartNumbers        `json:"part_numbers"`
	Technical      TechnicalAnalysis  `json:"technical_analysis"`
	DraftReply     string             `json:"draft_reply"`
	Actions        ActionPlan         `json:"action_plan"`
	Commitments    CommitmentAnalysis `json:"commitment_analysis"`
	ModelMetadata  map[string]any     `json:"model_metadata,omitempty"`
}

// QuoteAnalysis captures whether the email asks for a quote and the
// commercial fields the analysis could extract.
type QuoteAnalysis struct {
	IsQuoteRequest bool              `json:"is_quote_request"`
	Fields         map[string]string `json:"extracted_fields"` // quantity, timeline, delivery_location, eau, target_price
}

// PartInfo is one part number with its supporting evidence.
type PartInfo struct {
	PartNumber string `json:"pn"`
	Context    string `json:"context"`
	Snippet    string `json:"snippet"`
	Quantity   string `json:"quantity,omitempty"`
}

// PartNumbers splits extracted parts by who introduced them.
type PartNumbers struct {
	CustomerProvided []PartInfo `json:"customer_provided"`
	Recommended      []PartInfo `json:"recommended_by_you"`
}

// TechnicalSpec is a single labelled spec value.
type TechnicalSpec struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// TechnicalAnalysis summarises the technical content of the email.
type TechnicalAnalysis struct {
	Application string          `json:"application"`
	Specs       []TechnicalSpec `json:"specs_detected"`
	Risks       []string        `json:"risks"`
}

// ActionPlan lists suggested next steps and open questions.
type ActionPlan struct {
	SuggestedActions     []string `json:"suggested_actions"`
	MissingInfoQuestions []string `json:"missing_info_questions"`
}

// Commitment is one promise detected in an outgoing email.
type Commitment struct {
	TaskType          TaskType `json:"task_type"`
	Description       string   `json:"description"`
	DueDateOffsetDays int      `json:"due_date_offset_days"`
}

// CommitmentAnalysis holds the commitments harvested from an email.
type CommitmentAnalysis struct {
	Detected    bool         `json:"detected"`
	Commitments []Commitment `json:"commitments"`
}
