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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/pgmcp/pkg/mcp/protocol"
	"github.com/teradata-labs/pgmcp/pkg/mcp/transport"
)

// DefaultMaxInFlight bounds the requests Serve handles at once.
const DefaultMaxInFlight = 16

// Handler processes the params of one JSON-RPC method. A returned
// *protocol.Error keeps its code; any other error becomes InternalError.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Option configures a Server.
type Option func(*Server)

// WithToolProvider exposes p's tools and enables the tools capability.
func WithToolProvider(p ToolProvider) Option {
	return func(s *Server) {
		s.capabilities.Tools = &protocol.ToolsCapability{}
		s.handlers[protocol.MethodToolsList] = toolsListHandler(p)
		s.handlers[protocol.MethodToolsCall] = toolsCallHandler(p, s.logger)
	}
}

// WithInstructions sets the usage hint returned from initialize.
func WithInstructions(text string) Option {
	return func(s *Server) {
		s.instructions = text
	}
}

// WithMaxInFlight bounds concurrent request handling in Serve.
func WithMaxInFlight(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

// Server dispatches MCP requests to handlers.
type Server struct {
	info         protocol.Implementation
	capabilities protocol.ServerCapabilities
	instructions string
	handlers     map[string]Handler
	logger       *zap.Logger
	maxInFlight  int

	mu         sync.RWMutex
	clientInfo *protocol.Implementation
}

// New creates a server identified by name and version.
func New(name, version string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		info:        protocol.Implementation{Name: name, Version: version},
		handlers:    make(map[string]Handler),
		logger:      logger,
		maxInFlight: DefaultMaxInFlight,
	}
	s.handlers[protocol.MethodInitialize] = s.handleInitialize
	s.handlers[protocol.MethodInitialized] = s.handleInitialized
	s.handlers[protocol.MethodPing] = s.handlePing

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientInfo returns the client named in initialize, or nil before it.
func (s *Server) ClientInfo() *protocol.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// HandleMessage processes one message and returns the encoded response, or
// nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, msg []byte) ([]byte, error) {
	var req protocol.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return encode(protocol.NewErrorResponse(nil, protocol.NewError(protocol.ParseError, "invalid JSON", nil)))
	}
	if err := protocol.ValidateRequest(&req); err != nil {
		return encode(protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InvalidRequest, err.Error(), nil)))
	}

	handler, ok := s.handlers[req.Method]
	if !ok {
		if req.IsNotification() {
			return nil, nil
		}
		return encode(protocol.NewErrorResponse(req.ID,
			protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)))
	}

	start := time.Now()
	result, err := handler(ctx, req.Params)
	s.logger.Debug("request handled",
		zap.String("method", req.Method),
		zap.Stringer("id", req.ID),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("error", err != nil),
	)

	if req.IsNotification() {
		return nil, nil
	}
	if err != nil {
		var rpcErr *protocol.Error
		if !errors.As(err, &rpcErr) {
			s.logger.Error("handler failed", zap.String("method", req.Method), zap.Error(err))
			rpcErr = protocol.NewError(protocol.InternalError, err.Error(), nil)
		}
		return encode(protocol.NewErrorResponse(req.ID, rpcErr))
	}

	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		return encode(protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, err.Error(), nil)))
	}
	return encode(resp)
}

func encode(resp *protocol.Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return b, nil
}

// Serve reads messages from t until the peer closes it or ctx ends. Requests
// are handled concurrently, up to the in-flight limit, and responses are
// written as they complete. Serve returns nil when the peer closes the
// stream, after in-flight requests finish.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	s.logger.Info("MCP server starting", zap.String("name", s.info.Name), zap.String("version", s.info.Version))

	var g errgroup.Group
	g.SetLimit(s.maxInFlight)

	var sendErr error
	var sendOnce sync.Once
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var recvErr error
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			recvErr = err
			break
		}
		g.Go(func() error {
			resp, err := s.HandleMessage(ctx, msg)
			if err != nil {
				s.logger.Error("failed to handle message", zap.Error(err))
				return nil
			}
			if resp == nil {
				return nil
			}
			if err := t.Send(ctx, resp); err != nil {
				sendOnce.Do(func() {
					sendErr = err
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case sendErr != nil:
		s.logger.Error("send failed", zap.Error(sendErr))
		return fmt.Errorf("send response: %w", sendErr)
	case errors.Is(recvErr, io.EOF), errors.Is(recvErr, transport.ErrClosed):
		s.logger.Info("MCP client disconnected")
		return nil
	case ctx.Err() != nil && errors.Is(recvErr, ctx.Err()):
		s.logger.Info("MCP server stopping")
		return recvErr
	default:
		return fmt.Errorf("receive message: %w", recvErr)
	}
}
