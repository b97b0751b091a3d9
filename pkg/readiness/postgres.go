package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresChecker probes whether the database accepts statements by
// opening a connection and pinging it. A database container answers
// TCP well before its server process takes queries, so this is the
// probe the provisioner waits on.
type PostgresChecker struct {
	// DSN is a keyword/value data source name for the maintenance
	// database, e.g. "dbname=postgres user=postgres password=… host=db port=5432".
	DSN string

	// Timeout bounds a single probe attempt (default: 5 seconds)
	Timeout time.Duration
}

// NewPostgresChecker creates a checker for the given DSN
func NewPostgresChecker(dsn string) *PostgresChecker {
	return &PostgresChecker{
		DSN:     dsn,
		Timeout: 5 * time.Second,
	}
}

// Check opens a connection, pings it and closes it
func (p *PostgresChecker) Check(ctx context.Context) Result {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := pgx.Connect(probeCtx, p.DSN)
	if err != nil {
		return Result{
			Ready:     false,
			Message:   fmt.Sprintf("connect failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close(probeCtx)

	if err := conn.Ping(probeCtx); err != nil {
		return Result{
			Ready:     false,
			Message:   fmt.Sprintf("ping failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Ready:     true,
		Message:   "database accepting connections",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}
