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

// Package server implements an MCP server: a JSON-RPC dispatcher that
// exposes the tools of a ToolProvider.
package server

import (
	"context"
	"errors"

	"github.com/teradata-labs/pgmcp/pkg/mcp/protocol"
)

// ErrUnknownTool is returned by CallTool for a name ListTools does not list.
var ErrUnknownTool = errors.New("unknown tool")

// ToolProvider supplies tools to the server.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]protocol.Tool, error)

	// CallTool runs a tool. A returned error is reported to the client as a
	// tool failure; wrap ErrUnknownTool to report an invalid request instead.
	CallTool(ctx context.Context, name string, args map[string]any) (*protocol.CallToolResult, error)
}
