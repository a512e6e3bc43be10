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
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/pgmcp/pkg/mcp/protocol"
)

func (s *Server) handleInitialize(_ context.Context, params json.RawMessage) (any, error) {
	var p protocol.InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid initialize params: %v", err), nil)
		}
	}

	if p.ProtocolVersion != "" && p.ProtocolVersion != protocol.ProtocolVersion {
		s.logger.Warn("client protocol version differs",
			zap.String("client_version", p.ProtocolVersion),
			zap.String("server_version", protocol.ProtocolVersion),
		)
	}

	s.mu.Lock()
	client := p.ClientInfo
	s.clientInfo = &client
	s.mu.Unlock()

	s.logger.Info("client connected",
		zap.String("client_name", p.ClientInfo.Name),
		zap.String("client_version", p.ClientInfo.Version),
	)

	return protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolVersion,
		Capabilities:    s.capabilities,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) (any, error) {
	s.logger.Debug("client initialized")
	return nil, nil
}

func (s *Server) handlePing(context.Context, json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func toolsListHandler(provider ToolProvider) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		tools, err := provider.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		if tools == nil {
			tools = []protocol.Tool{}
		}
		return protocol.ToolListResult{Tools: tools}, nil
	}
}

func toolsCallHandler(provider ToolProvider, logger *zap.Logger) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		// Numbers in arguments stay json.Number so large integers keep
		// their precision.
		var p protocol.CallToolParams
		dec := json.NewDecoder(bytes.NewReader(params))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid tool call params: %v", err), nil)
		}
		if p.Name == "" {
			return nil, protocol.NewError(protocol.InvalidParams, "tool name is required", nil)
		}

		result, err := provider.CallTool(ctx, p.Name, p.Arguments)
		switch {
		case errors.Is(err, ErrUnknownTool):
			return nil, protocol.NewError(protocol.InvalidParams, err.Error(), map[string]string{"tool": p.Name})
		case err != nil:
			logger.Warn("tool call failed", zap.String("tool", p.Name), zap.Error(err))
			return protocol.ErrorResult(err.Error()), nil
		}
		return result, nil
	}
}
