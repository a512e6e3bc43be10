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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeParams(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"absent", nil, nil},
		{"empty", []any{}, []any{}},
		{"integral json number", []any{json.Number("42")}, []any{int64(42)}},
		{"large integer keeps precision", []any{json.Number("9007199254740993")}, []any{int64(9007199254740993)}},
		{"fractional", []any{json.Number("1.5")}, []any{1.5}},
		{"integral float", []any{float64(7)}, []any{int64(7)}},
		{"exponent integral", []any{json.Number("1e3")}, []any{int64(1000)}},
		{"scalars", []any{"a", true, nil}, []any{"a", true, nil}},
		{"int array", []any{[]any{json.Number("1"), json.Number("2")}}, []any{[]int64{1, 2}}},
		{"string array", []any{[]any{"a", "b"}}, []any{[]string{"a", "b"}}},
		{"bool array", []any{[]any{true, false}}, []any{[]bool{true, false}}},
		{"mixed numbers", []any{[]any{json.Number("1"), json.Number("2.5")}}, []any{[]float64{1, 2.5}}},
		{"mixed array", []any{[]any{"a", json.Number("1")}}, []any{`["a",1]`}},
		{"object", []any{map[string]any{"k": "v"}}, []any{`{"k":"v"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeParams(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeParams_NotArray(t *testing.T) {
	_, err := NormalizeParams("SELECT")
	assert.Error(t, err)
}

func TestNormalizeParams_InvalidNumber(t *testing.T) {
	_, err := NormalizeParams([]any{json.Number("NaN-ish")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "param $1")
}
