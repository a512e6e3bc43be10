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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/pgmcp/internal/log"
	"github.com/teradata-labs/pgmcp/pkg/mcp/sqltool"
	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		rawParams []string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run one statement and print the result",
		Long: `Run one SQL statement and print its rows.

Each --param binds the next positional parameter ($1, $2, ...). Values that
parse as JSON are passed typed (42, 1.5, true, null, [1,2]); anything else is
passed as text.

Examples:
  pgmcp query "SELECT 1 AS one"
  pgmcp query "SELECT * FROM users WHERE id = $1" --param 42 --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "yaml" {
				return fmt.Errorf("unknown output format %q (want json or yaml)", output)
			}
			params, err := parseParams(rawParams)
			if err != nil {
				return err
			}
			return runQuery(cmd.Context(), a, cmd.OutOrStdout(), cmd.ErrOrStderr(), postgres.QueryRequest{SQL: args[0], Params: params}, output)
		},
	}
	cmd.Flags().StringArrayVarP(&rawParams, "param", "p", nil, "positional parameter (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

func runQuery(ctx context.Context, a *app, out, errOut io.Writer, req postgres.QueryRequest, format string) error {
	logger, err := a.setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := a.newManager(logger, nil)
	defer manager.Disconnect()

	if err := connectWithRetry(ctx, manager, a.cfg.ConnectRetries, logger); err != nil {
		return err
	}
	res, err := a.newDriver(manager, logger, nil).ExecuteResult(ctx, req)
	if err != nil {
		return err
	}
	if err := writeResult(out, res, format); err != nil {
		return err
	}
	if res.Truncated {
		fmt.Fprintf(errOut, "result truncated to %d rows\n", len(res.Rows))
	}
	return nil
}

// parseParams decodes each raw value as JSON, keeping it as text when it is
// not a single JSON value.
func parseParams(raw []string) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	values := make([]any, len(raw))
	for i, s := range raw {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			values[i] = s
			continue
		}
		values[i] = v
	}
	return sqltool.NormalizeParams(values)
}

func writeResult(w io.Writer, res *postgres.Result, format string) error {
	if len(res.Columns) == 0 {
		_, err := fmt.Fprintf(w, "Statement executed successfully. Rows affected: %d\n", res.RowsAffected)
		return err
	}

	rows := sqltool.DisplayRows(res)
	switch format {
	case "yaml":
		body, err := rowsYAML(rows)
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	default:
		body, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", body)
		return err
	}
}

// rowsYAML renders rows as YAML in column order. The rows are encoded as JSON
// first so that every value renders the way it does in execute_sql results.
func rowsYAML(rows []postgres.RowResult) ([]byte, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// blockStyle clears the flow and quoting styles carried over from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
