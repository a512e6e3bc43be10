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
package protocol

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateRequest checks the JSON-RPC envelope of req.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %q (expected %s)", req.JSONRPC, JSONRPCVersion)
	}
	if req.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// ArgumentValidator checks tool arguments against a tool's input schema.
// The schema is compiled once.
type ArgumentValidator struct {
	schema *gojsonschema.Schema
}

// NewArgumentValidator compiles tool's input schema. A tool without a
// schema accepts any arguments.
func NewArgumentValidator(tool Tool) (*ArgumentValidator, error) {
	if len(tool.InputSchema) == 0 {
		return &ArgumentValidator{}, nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("compile input schema of %s: %w", tool.Name, err)
	}
	return &ArgumentValidator{schema: schema}, nil
}

// Validate reports every schema violation in args.
func (v *ArgumentValidator) Validate(args map[string]any) error {
	if v.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}
