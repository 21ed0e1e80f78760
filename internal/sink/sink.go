// Package sink is the Sink (C6): a synchronous, batched writer of
// model.DomainRow values into the analytical column store. ClickHouse is
// reached over its MySQL wire-protocol compatibility port so the engine
// can reuse database/sql and go-sql-driver/mysql rather than add a
// ClickHouse-specific client to the dependency set.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"itko.dev/internal/model"
)

// Sink writes batches of rows to the store's domains table.
type Sink struct {
	db    *sql.DB
	table string
}

// Open connects to a ClickHouse MySQL-interface endpoint at dsn (e.g.
// "user:pass@tcp(host:9004)/ctlog") and returns a Sink writing into table.
func Open(dsn, table string) (*Sink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}
	return &Sink{db: db, table: table}, nil
}

func (s *Sink) Close() error { return s.db.Close() }

// Ping verifies the store is reachable; cmd/ctingest calls this once at
// startup so an unreachable sink is a fatal init error rather than a
// silently stuck worker (§6 exit codes).
func (s *Sink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var insertColumns = model.SinkColumns

// Insert durably writes rows, returning only after the store has
// accepted the batch or raised an error. Errors are classified so the
// Worker knows whether to retry the whole batch (cursor unchanged) or
// treat it as non-retryable (§4.6, §7).
func (s *Sink) Insert(ctx context.Context, rows []model.DomainRow) error {
	if len(rows) == 0 {
		return nil
	}

	query, args := buildInsert(s.table, rows)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sink insert: %w", err)
	}
	return nil
}

func buildInsert(table string, rows []model.DomainRow) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(insertColumns, ", "))

	args := make([]any, 0, len(rows)*len(insertColumns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		san, _ := json.Marshal(row.SAN) // []string always marshals cleanly
		args = append(args,
			row.TS, row.Domain, row.BaseDomain, row.Fingerprint, row.Issuer, row.Subject,
			string(san), row.NotBefore, row.NotAfter, row.LogName,
		)
	}
	return sb.String(), args
}

// Retryable reports whether err should cause the Worker to retry the
// batch without advancing the cursor, versus logging and sleeping while
// leaving the batch for a later attempt without operator action (§7's
// "Sink transient" vs a non-retryable store fault).
func Retryable(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213 deadlock, 1205 lock wait timeout: retry the same batch.
		// Anything else from the server (bad SQL, type mismatch, a
		// rejected row) is a non-retryable store fault.
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	// No MySQLError means the driver never reached the server: a refused
	// connection, timeout, or context deadline. Treat as transient.
	return true
}
