package executor

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/queryshield/queryshield/internal/queryshield/logger"
)

// Target identifies one execution backend.
type Target struct {
	Backend  string // mysql | postgres
	DSN      string
	Database string
}

// Rowset is the generic result of a read-only statement.
type Rowset struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// Executor runs an already-validated, already-sanitized statement against
// a backend. Implementations must honor the context deadline.
type Executor interface {
	Execute(ctx context.Context, target Target, statement string) (*Rowset, error)
}

// SQLExecutor executes statements over database/sql using the registered
// mysql and postgres drivers.
type SQLExecutor struct{}

// NewSQLExecutor returns the stock database/sql executor.
func NewSQLExecutor() *SQLExecutor {
	return &SQLExecutor{}
}

func driverFor(backend string) (string, error) {
	switch backend {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported backend %q", backend)
	}
}

// Execute opens a connection to the target, runs the statement and scans
// every row into a generic map. The context deadline applies to the whole
// call.
func (x *SQLExecutor) Execute(ctx context.Context, target Target, statement string) (*Rowset, error) {
	driver, err := driverFor(target.Backend)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", target.Backend, err)
	}
	defer db.Close()

	logger.L().Debugw("Executing statement",
		"backend", target.Backend,
		"database", target.Database)

	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	result := &Rowset{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// Drivers hand back []byte for text columns; convert so
			// the rowset serializes as strings, not base64.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
