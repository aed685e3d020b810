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

// ImportStatus is the lifecycle state of one batch-ingestion run.
type ImportStatus string

const (
	ImportPending    ImportStatus = "pending"
	ImportProcessing ImportStatus = "processing"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s ImportStatus) Terminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// Import represents one batch-ingestion run. Mutated only by the
// orchestrator that owns it; immutable once Terminal().
type Import struct {
	ID              string
	Filename        string
	Status          ImportStatus
	EmailsProcessed int
	EmailsSkipped   int
	Metadata        map[string]any
	CreatedAt       time.Time
}
