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

// Package sqltool exposes SQL execution as the execute_sql MCP tool.
package sqltool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/pgmcp/pkg/mcp/protocol"
	"github.com/teradata-labs/pgmcp/pkg/mcp/server"
	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

// ToolName is the name clients call.
const ToolName = "execute_sql"

// Executor runs one statement. *postgres.QueryDriver implements it.
type Executor interface {
	ExecuteResult(ctx context.Context, req postgres.QueryRequest) (*postgres.Result, error)
}

// Provider is a server.ToolProvider serving execute_sql.
type Provider struct {
	exec      Executor
	logger    *zap.Logger
	tool      protocol.Tool
	validator *protocol.ArgumentValidator
}

var _ server.ToolProvider = (*Provider)(nil)

// New creates the provider.
func New(exec Executor, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tool := Definition()
	validator, err := protocol.NewArgumentValidator(tool)
	if err != nil {
		return nil, err
	}
	return &Provider{exec: exec, logger: logger, tool: tool, validator: validator}, nil
}

// Definition returns the execute_sql tool definition.
func Definition() protocol.Tool {
	return protocol.Tool{
		Name:        ToolName,
		Description: "Execute any SQL query",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "SQL to run",
				},
				"params": map[string]any{
					"type":        "array",
					"description": "Positional parameters bound to $1, $2, ...",
				},
			},
			"required":             []any{"sql"},
			"additionalProperties": false,
		},
		Annotations: &protocol.ToolAnnotations{
			Title:         "Execute SQL",
			OpenWorldHint: boolPtr(false),
		},
	}
}

func boolPtr(b bool) *bool { return &b }

// ListTools implements server.ToolProvider.
func (p *Provider) ListTools(context.Context) ([]protocol.Tool, error) {
	return []protocol.Tool{p.tool}, nil
}

// CallTool implements server.ToolProvider. Database and argument failures
// come back as error results; only an unknown tool name is an error.
func (p *Provider) CallTool(ctx context.Context, name string, args map[string]any) (*protocol.CallToolResult, error) {
	if name != ToolName {
		return nil, fmt.Errorf("%w: %s", server.ErrUnknownTool, name)
	}
	if err := p.validator.Validate(args); err != nil {
		return protocol.ErrorResult(err.Error()), nil
	}

	sql, _ := args["sql"].(string)
	params, err := NormalizeParams(args["params"])
	if err != nil {
		return protocol.ErrorResult(err.Error()), nil
	}

	res, err := p.exec.ExecuteResult(ctx, postgres.QueryRequest{SQL: sql, Params: params})
	if err != nil {
		return failure(err), nil
	}
	return render(res)
}

func failure(err error) *protocol.CallToolResult {
	result := protocol.ErrorResult(err.Error())
	var pgErr *postgres.Error
	if errors.As(err, &pgErr) {
		result.StructuredContent = map[string]any{
			"error_kind": pgErr.Kind.String(),
			"retryable":  pgErr.Retryable(),
		}
		if pgErr.Code != "" {
			result.StructuredContent["sqlstate"] = pgErr.Code
		}
	}
	return result
}

func render(res *postgres.Result) (*protocol.CallToolResult, error) {
	if len(res.Columns) == 0 {
		text := fmt.Sprintf("Statement executed successfully. Rows affected: %d", res.RowsAffected)
		return &protocol.CallToolResult{
			Content: []protocol.Content{protocol.TextContent(text)},
			StructuredContent: map[string]any{
				"command":       res.Command,
				"rows_affected": res.RowsAffected,
			},
		}, nil
	}

	rows := DisplayRows(res)
	body, err := json.Marshal(rows)
	if err != nil {
		return protocol.ErrorResult(fmt.Sprintf("encode rows: %v", err)), nil
	}
	text := string(body)
	if res.Truncated {
		text += fmt.Sprintf("\n(result truncated to %d rows)", len(rows))
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.TextContent(text)},
		StructuredContent: map[string]any{
			"rows":      rows,
			"row_count": len(rows),
			"columns":   res.Columns,
			"truncated": res.Truncated,
		},
	}, nil
}
