package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const createRecordsTable = `CREATE TABLE IF NOT EXISTS scan_records (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	target     TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Postgres stores records in the scan_records table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens dsn and creates the scan_records table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createRecordsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create scan_records: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Save(ctx context.Context, rec *Record) error {
	touch(rec)

	var result interface{}
	if len(rec.Result) > 0 {
		result = []byte(rec.Result)
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO scan_records (id, kind, target, status, error, result, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   error = EXCLUDED.error,
		   result = EXCLUDED.result,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Kind, rec.Target, rec.Status, rec.Error, result,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (p *Postgres) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	var result []byte

	err := p.db.QueryRowContext(ctx,
		`SELECT id, kind, target, status, error, result, created_at, updated_at
		 FROM scan_records WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Kind, &rec.Target, &rec.Status, &rec.Error, &result,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(result) > 0 {
		rec.Result = result
	}
	return &rec, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
