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

// pgmcp is an MCP server that lets MCP clients run SQL against one
// PostgreSQL database through the execute_sql tool.
//
// It communicates with MCP clients over stdio (JSON-RPC). Logs go to stderr
// or a log file, never to stdout.
//
// Usage:
//
//	pgmcp serve --pg-host localhost --pg-database app
//
// MCP client configuration:
//
//	{
//	  "mcpServers": {
//	    "postgres": {
//	      "command": "/path/to/pgmcp",
//	      "args": ["serve"],
//	      "env": {"POSTGRES_HOST": "localhost", "POSTGRES_DB": "app"}
//	    }
//	  }
//	}
package main

import "os"

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
