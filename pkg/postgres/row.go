// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package postgres

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teradata-labs/pgmcp/internal/ordered"
)

// RowResult is one result row: column names mapped to values in column
// order. Values are whatever pgx decoded for the column type (int32, int64,
// time.Time, pgtype.Numeric, ...), passed through untouched.
//
// When a statement yields the same column name twice the name keeps its
// first position and the later value.
type RowResult struct {
	cells *ordered.Map[string, any]
}

// NewRowResult builds a row from parallel column and value slices.
func NewRowResult(columns []string, values []any) RowResult {
	cells := ordered.WithCapacity[string, any](len(columns))
	for i, col := range columns {
		var v any
		if i < len(values) {
			v = values[i]
		}
		cells.Set(col, v)
	}
	return RowResult{cells: cells}
}

// Columns returns the column names in order.
func (r RowResult) Columns() []string {
	if r.cells == nil {
		return nil
	}
	return r.cells.Keys()
}

// Values returns the values in column order.
func (r RowResult) Values() []any {
	if r.cells == nil {
		return nil
	}
	return r.cells.Values()
}

// Get returns the value of a column.
func (r RowResult) Get(column string) (any, bool) {
	if r.cells == nil {
		return nil, false
	}
	return r.cells.Get(column)
}

// Len returns the number of columns.
func (r RowResult) Len() int {
	if r.cells == nil {
		return 0
	}
	return r.cells.Len()
}

// Map returns the row as an unordered map.
func (r RowResult) Map() map[string]any {
	out := make(map[string]any, r.Len())
	if r.cells == nil {
		return out
	}
	for k, v := range r.cells.All() {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r RowResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.cells != nil {
		i := 0
		for k, v := range r.cells.All() {
			if i > 0 {
				buf.WriteByte(',')
			}
			i++
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", k, err)
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Column describes one result column.
type Column struct {
	Name    string `json:"name"`
	TypeOID uint32 `json:"type_oid"`
	Type    string `json:"type"`
}

// QueryRequest is a single SQL statement with positional parameters.
type QueryRequest struct {
	SQL    string
	Params []any
}

// Result is the full outcome of one statement.
type Result struct {
	Columns []Column
	// Rows is never nil for a successful statement.
	Rows []RowResult
	// RowsAffected and Command come from the server's command tag.
	RowsAffected int64
	Command      string
	// Truncated is set when the row cap cut the result short.
	Truncated bool
	Duration  time.Duration
}
