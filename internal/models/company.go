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

// Company is a canonical organisation resolved from sender domains.
// Name and Domain are each globally unique; resolution must never create
// two rows for the same domain.
type Company struct {
	ID        int64
	Name      string
	Domain    string // empty for name-only companies
	Industry  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpportunityStatus is the sales-pipeline progression of an opportunity.
type OpportunityStatus string

const (
	OpportunityLead       OpportunityStatus = "lead"
	OpportunityQualified  OpportunityStatus = "qualified"
	OpportunityClosedWon  OpportunityStatus = "closed_won"
	OpportunityClosedLost OpportunityStatus = "closed_lost"
)

// CanAdvanceTo reports whether a transition to next is allowed.
// lead → qualified → closed_won|closed_lost; closed states are terminal.
func (s OpportunityStatus) CanAdvanceTo(next OpportunityStatus) bool {
	switch s {
	case OpportunityLead:
		return next == OpportunityQualified
	case OpportunityQualified:
		return next == OpportunityClosedWon || next == OpportunityClosedLost
	default:
		return false
	}
}

// Opportunity is a sales-pipeline record attached to a company. It is
// populated by downstream consumers, never by the ingestion pipeline.
type Opportunity struct {
	ID                 int64
	CompanyID          int64
	Title              string
	Status             OpportunityStatus
	Value              float64
	EstimatedCloseDate *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
