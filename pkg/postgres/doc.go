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

// Package postgres relays SQL statements to a single PostgreSQL database
// through a pgx/v5 connection pool.
//
// A ConnectionManager owns the pool: it is created lazily, probed with a
// ping before first use, and closed on Disconnect. A QueryDriver runs one
// statement at a time on a pooled connection and returns the rows as
// ordered column/value maps.
//
// Every failure is an *Error whose Kind places it in one of five
// categories (configuration, connection, query, execution, timeout).
// Match them with errors.Is against ErrConfiguration, ErrConnection,
// ErrQuery, ErrExecution and ErrTimeout.
//
// Usage:
//
//	cfg := postgres.DefaultConnectionConfig()
//	manager := postgres.NewConnectionManager(cfg, postgres.WithLogger(logger))
//	defer manager.Disconnect()
//
//	driver := postgres.NewQueryDriver(manager, nil)
//	rows, err := driver.Query(ctx, "SELECT id, name FROM users WHERE id = $1", int64(7))
package postgres
