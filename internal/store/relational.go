package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Relational wraps the Postgres knowledge base. The caller owns the
// lifecycle: open at batch start, Close at batch end.
type Relational struct {
	db *sql.DB
}

func OpenRelational(url string) (*Relational, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Relational{db: db}, nil
}

// Query runs a read statement and returns all rows as column→value maps.
func (r *Relational) Query(ctx context.Context, stmt string) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("sql query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			// lib/pq surfaces text columns as []byte
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a mutating statement. Used by loading tools only; the audit
// executor never calls it.
func (r *Relational) Exec(ctx context.Context, stmt string, args ...any) error {
	_, err := r.db.ExecContext(ctx, stmt, args...)
	return err
}

func (r *Relational) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Relational) Close() error {
	return r.db.Close()
}
