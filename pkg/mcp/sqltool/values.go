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
package sqltool

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

// DisplayRows returns res's rows with values converted for display.
func DisplayRows(res *postgres.Result) []postgres.RowResult {
	rows := make([]postgres.RowResult, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = displayRow(res.Columns, row)
	}
	return rows
}

// displayRow converts values that encode poorly as JSON. pgx decodes uuid
// columns to [16]byte, which would otherwise print as a number array, and
// NaN and infinite floats have no JSON form.
func displayRow(columns []postgres.Column, row postgres.RowResult) postgres.RowResult {
	names := row.Columns()
	values := row.Values()

	uuidCols := make(map[string]bool)
	for _, c := range columns {
		if c.TypeOID == pgtype.UUIDOID || c.TypeOID == pgtype.UUIDArrayOID {
			uuidCols[c.Name] = true
		}
	}

	out := make([]any, len(values))
	for i, v := range values {
		out[i] = displayValue(v, uuidCols[names[i]])
	}
	return postgres.NewRowResult(names, out)
}

func displayValue(v any, isUUID bool) any {
	switch t := v.(type) {
	case [16]byte:
		if isUUID {
			return uuid.UUID(t).String()
		}
	case float64:
		return displayFloat(t)
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			return displayFloat(f)
		}
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = displayFloat(f)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = displayValue(e, isUUID)
		}
		return out
	}
	return v
}

// displayFloat spells non-finite values the way PostgreSQL prints them.
func displayFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

// NormalizeParams turns decoded JSON arguments into values pgx can bind.
// Numbers become int64 when integral and float64 otherwise. Homogeneous
// arrays become typed slices so they can bind to array parameters; objects
// and mixed arrays are passed as JSON text.
func NormalizeParams(raw any) ([]any, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("params must be an array, got %T", raw)
	}
	out := make([]any, len(list))
	for i, v := range list {
		p, err := normalizeParam(v)
		if err != nil {
			return nil, fmt.Errorf("param $%d: %w", i+1, err)
		}
		out[i] = p
	}
	return out, nil
}

func normalizeParam(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int64:
		return t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", t)
		}
		return fromFloat(f), nil
	case float64:
		return fromFloat(t), nil
	case []any:
		return normalizeArray(t)
	default:
		return jsonText(t)
	}
}

func fromFloat(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func normalizeArray(list []any) (any, error) {
	elems := make([]any, len(list))
	for i, e := range list {
		n, err := normalizeParam(e)
		if err != nil {
			return nil, err
		}
		elems[i] = n
	}

	if ints, ok := typedSlice[int64](elems); ok {
		return ints, nil
	}
	if strs, ok := typedSlice[string](elems); ok {
		return strs, nil
	}
	if bools, ok := typedSlice[bool](elems); ok {
		return bools, nil
	}
	if floats, ok := floatSlice(elems); ok {
		return floats, nil
	}
	return jsonText(list)
}

func typedSlice[T any](elems []any) ([]T, bool) {
	if len(elems) == 0 {
		return nil, false
	}
	out := make([]T, len(elems))
	for i, e := range elems {
		v, ok := e.(T)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// floatSlice accepts a mix of integral and fractional numbers.
func floatSlice(elems []any) ([]float64, bool) {
	if len(elems) == 0 {
		return nil, false
	}
	out := make([]float64, len(elems))
	for i, e := range elems {
		switch n := e.(type) {
		case float64:
			out[i] = n
		case int64:
			out[i] = float64(n)
		default:
			return nil, false
		}
	}
	return out, true
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
