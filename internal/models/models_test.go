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

import (
	"encoding/json"
	"testing"
)

// TestImportStatus_Terminal verifies which import states are final.
func TestImportStatus_Terminal(t *testing.T) {
	if ImportPending.Terminal() || ImportProcessing.Terminal() {
		t.Error("pending/processing must not be terminal")
	}
	if !ImportCompleted.Terminal() || !ImportFailed.Terminal() {
		t.Error("completed/failed must be terminal")
	}
}

// TestOpportunityStatus_CanAdvanceTo verifies the sales-pipeline
// progression rules.
func TestOpportunityStatus_CanAdvanceTo(t *testing.T) {
	allowed := map[[2]OpportunityStatus]bool{
		{OpportunityLead, OpportunityQualified}:       true,
		{OpportunityQualified, OpportunityClosedWon}:  true,
		{OpportunityQualified, OpportunityClosedLost}: true,
	}
	all := []OpportunityStatus{
		OpportunityLead, OpportunityQualified, OpportunityClosedWon, OpportunityClosedLost,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OpportunityStatus{from, to}]
			if got := from.CanAdvanceTo(to); got != want {
				t.Errorf("%s -> %s = %v, want %v", from, to, got, want)
			}
		}
	}
}

// TestClosedSets verifies the closed value sets used at the boundary.
func TestClosedSets(t *testing.T) {
	if !SourceCustomerProvided.Valid() || !SourceRecommended.Valid() {
		t.Error("known source types must be valid")
	}
	if SourceType("vendor").Valid() {
		t.Error("unknown source type must be invalid")
	}
	if !TaskFollowUp.Valid() || !TaskWaitingOnClient.Valid() {
		t.Error("known task types must be valid")
	}
	if TaskType("escalate").Valid() {
		t.Error("unknown task type must be invalid")
	}
}

// TestAnalysisResult_JSONContract verifies the field names shared with
// the analysis workers.
func TestAnalysisResult_JSONContract(t *testing.T) {
	payload := `{
		"summary": "s",
		"intent": "quote_request",
		"priority": "P1",
		"quote_analysis": {"is_quote_request": true, "extracted_fields": {"quantity": "500"}},
		"part_numbers": {
			"customer_provided": [{"pn": "TFT-0700A", "context": "c", "snippet": "sn"}],
			"recommended_by_you": []
		},
		"technical_analysis": {"application": "kiosk", "specs_detected": [{"label": "Brightness", "value": "1000 nits"}], "risks": []},
		"draft_reply": "d",
		"action_plan": {"suggested_actions": ["reply"], "missing_info_questions": []},
		"commitment_analysis": {"detected": true, "commitments": [{"task_type": "follow_up", "description": "x", "due_date_offset_days": 2}]}
	}`

	var res AnalysisResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Quote.IsQuoteRequest || res.Quote.Fields["quantity"] != "500" {
		t.Errorf("quote = %+v", res.Quote)
	}
	if len(res.Parts.CustomerProvided) != 1 || res.Parts.CustomerProvided[0].PartNumber != "TFT-0700A" {
		t.Errorf("parts = %+v", res.Parts)
	}
	if len(res.Technical.Specs) != 1 || res.Technical.Specs[0].Label != "Brightness" {
		t.Errorf("specs = %+v", res.Technical.Specs)
	}
	if !res.Commitments.Detected || res.Commitments.Commitments[0].TaskType != TaskFollowUp {
		t.Errorf("commitments = %+v", res.Commitments)
	}
	if res.Commitments.Commitments[0].DueDateOffsetDays != 2 {
		t.Errorf("offset = %d", res.Commitments.Commitments[0].DueDateOffsetDays)
	}
}
