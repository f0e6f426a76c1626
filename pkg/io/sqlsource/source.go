// Package sqlsource reads entity records from a relational access-graph
// export through database/sql. SQLite and PostgreSQL drivers are registered.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	// Register the "pgx" driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Register the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/hed1ad/accessguard/pkg/errorutil"
	"github.com/hed1ad/accessguard/pkg/features"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Source runs a single query and turns every row into a record keyed by
// column name.
type Source struct {
	db    *sql.DB
	query string
	args  []any
	owned bool
}

// Option configures a Source.
type Option func(*Source)

// WithArgs binds query arguments.
func WithArgs(args ...any) Option {
	return func(s *Source) {
		s.args = args
	}
}

// Open connects with the named driver. The returned Source owns the pool.
func Open(driver, dsn, query string, opts ...Option) (*Source, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, errorutil.Configuration("source.driver", "unsupported driver %q", driver)
	}
	if query == "" {
		return nil, errorutil.Configuration("source.query", "query must not be empty")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	s := New(db, query, opts...)
	s.owned = true
	return s, nil
}

// New wraps an existing pool. Close leaves the pool open.
func New(db *sql.DB, query string, opts ...Option) *Source {
	s := &Source{db: db, query: query}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Records runs the query.
func (s *Source) Records(ctx context.Context) ([]features.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []features.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		rec := make(features.Record, len(cols))
		for i, col := range cols {
			switch v := vals[i].(type) {
			case nil:
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = v
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Close closes the pool when the Source opened it.
func (s *Source) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
