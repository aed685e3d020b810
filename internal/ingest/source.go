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

package ingest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/displayintel/pipeline/internal/models"
)

// JSONLSource reads raw records from a JSON-lines stream, the flat
// format upstream mailbox parsers emit one record per line. Decoding is
// stream-based rather than line-based, so concatenated or pretty-printed
// record objects are accepted too; the record counter tracks records,
// not physical lines.
type JSONLSource struct {
	dec  *json.Decoder
	line int
}

// NewJSONLSource creates a source over r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	return &JSONLSource{dec: json.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at end of stream. A decode
// error identifies the failing record; the stream is not resumable past
// it.
func (s *JSONLSource) Next() (models.RawRecord, error) {
	var rec models.RawRecord
	err := s.dec.Decode(&rec)
	if err == io.EOF {
		return rec, io.EOF
	}
	if err != nil {
		return rec, fmt.Errorf("decode record %d: %w", s.line+1, err)
	}
	s.line++
	return rec, nil
}

// SliceSource yields records from memory. Used by tests and small
// programmatic imports.
type SliceSource struct {
	records []models.RawRecord
	pos     int
}

// NewSliceSource creates a source over the given records.
func NewSliceSource(records []models.RawRecord) *SliceSource {
	return &SliceSource{records: records}
}

// Next returns the next record, or io.EOF when exhausted.
func (s *SliceSource) Next() (models.RawRecord, error) {
	if s.pos >= len(s.records) {
		return models.RawRecord{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
