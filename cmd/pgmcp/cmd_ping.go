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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/pgmcp/internal/log"
)

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the database is reachable",
		Long:  `Connect to the configured database and run the liveness probe. Exits non-zero on failure.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := a.setupLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			manager := a.newManager(logger, nil)
			defer manager.Disconnect()

			if err := connectWithRetry(cmd.Context(), manager, a.cfg.ConnectRetries, logger); err != nil {
				return err
			}
			cfg := manager.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: connected to %s/%s as %s\n", cfg.Address(), cfg.Database, cfg.User)
			return nil
		},
	}
}
