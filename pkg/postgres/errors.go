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
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind is the category of a failure surfaced by this package.
type ErrorKind int

const (
	KindUnknown       ErrorKind = iota
	KindConfiguration           // missing or invalid connection parameters
	KindConnection              // pool establishment or liveness probe failed
	KindQuery                   // the database rejected the statement
	KindExecution               // infrastructure failure while executing
	KindTimeout                 // a bounded wait expired
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindExecution:
		return "execution"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrQuery         = errors.New("query error")
	ErrExecution     = errors.New("execution error")
	ErrTimeout       = errors.New("timeout error")
)

var kindSentinels = map[ErrorKind]error{
	KindConfiguration: ErrConfiguration,
	KindConnection:    ErrConnection,
	KindQuery:         ErrQuery,
	KindExecution:     ErrExecution,
	KindTimeout:       ErrTimeout,
}

// Error is the single error type returned by Connect and Execute.
// Its message always embeds the underlying cause's message.
type Error struct {
	Kind ErrorKind
	Op   string
	// Code is the SQLSTATE reported by the server, if any.
	Code string
	Err  error
}

func newError(kind ErrorKind, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.Code = pgErr.Code
	}
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Retryable reports whether retrying the same request after a backoff can
// succeed. Configuration and query errors need a different input.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindConnection, KindExecution, KindTimeout:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of err, or KindUnknown when err did not come from
// this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable error from this package.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// classify maps a failure raised while acquiring a connection or running a
// statement onto the error taxonomy.
func classify(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return newError(KindTimeout, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(KindExecution, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.QueryCanceled:
			return newError(KindTimeout, op, err)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code),
			pgerrcode.IsTransactionRollback(pgErr.Code):
			return newError(KindExecution, op, err)
		default:
			return newError(KindQuery, op, err)
		}
	}

	return newError(KindExecution, op, err)
}

// connectError wraps an establishment failure, keeping errors that are
// already classified.
func connectError(op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindConnection, op, err)
}
