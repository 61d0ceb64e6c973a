/*
main.go - Application entry point

PURPOSE:
  Starts the incentive engine: calculation service, approval workflow,
  HTTP API and the SLA sweep. Handles configuration, dependency wiring
  and graceful shutdown.

COMMANDS:
  serve     Run the HTTP server (default when no command is given)
  migrate   Create or upgrade the SQLite schema and exit
  version   Print build information

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, INCENTIVE_CONFIG file, INCENTIVE_* env)
  2. Open and migrate the SQLite store
  3. Wrap the department directory in the Redis cache when configured
  4. Build the approval workflow, metrics and service
  5. Start the SLA sweeper when enabled
  6. Serve HTTP until SIGINT/SIGTERM

FLAGS:
  --addr   Override the listen address
  --db     Override the SQLite path (":memory:" for in-memory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the Redis client and the database

EXAMPLES:
  # Run with defaults
  ./server

  # In-memory database, demo data via POST /api/scenarios/load
  ./server serve --db=":memory:"

  # Configuration file plus overrides
  INCENTIVE_CONFIG=./incentive.yaml INCENTIVE_LOG_LEVEL=debug ./server

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
