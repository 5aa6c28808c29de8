// Package all registers every built-in storage backend.
package all

import (
	_ "trafficstops/internal/storage/csvfile"
	_ "trafficstops/internal/storage/mssql"
	_ "trafficstops/internal/storage/postgres"
	_ "trafficstops/internal/storage/sqlite"
)
