// Package pgsheet stores the ledger workbook in PostgreSQL, one row per
// sheet row. It is the hosted alternative to a local .xlsx file: several
// machines can reach it and it is never locked by a desktop program.
package pgsheet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"gym-ledger-bot/internal/sheet"
)

// Store is a sheet.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ sheet.Store = (*Store)(nil)

// New creates a Store. Migrate must have run on the database.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Migrate creates the workbook tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running workbook migrations...")

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sheets (
			name TEXT PRIMARY KEY,
			ordinal BIGSERIAL,
			header TEXT[] NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS sheet_rows (
			sheet TEXT NOT NULL REFERENCES sheets(name) ON DELETE CASCADE,
			position INT NOT NULL,
			cells TEXT[] NOT NULL,
			PRIMARY KEY (sheet, position)
		);
		ALTER TABLE sheets ADD COLUMN IF NOT EXISTS column_types JSONB NOT NULL DEFAULT '{}';
	`)
	if err != nil {
		return fmt.Errorf("failed to create workbook tables: %w", err)
	}

	log.Info().Msg("Workbook migrations completed")
	return nil
}

// ReadSheet returns the header and all rows of a sheet in order.
func (s *Store) ReadSheet(ctx context.Context, name string) (*sheet.Table, error) {
	return readSheet(ctx, s.pool, name)
}

func readSheet(ctx context.Context, q querier, name string) (*sheet.Table, error) {
	var (
		header []string
		types  map[string]sheet.ColumnType
	)
	err := q.QueryRow(ctx, `SELECT header, column_types FROM sheets WHERE name = $1`, name).Scan(&header, &types)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", sheet.ErrSheetNotFound, name)
		}
		return nil, classify(err)
	}

	rows, err := q.Query(ctx, `SELECT cells FROM sheet_rows WHERE sheet = $1 ORDER BY position`, name)
	if err != nil {
		return nil, classify(err)
	}
	cells, err := pgx.CollectRows(rows, pgx.RowTo[[]string])
	if err != nil {
		return nil, classify(err)
	}

	return &sheet.Table{Header: header, Rows: cells, Types: types}, nil
}

// WriteSheet replaces a sheet in one transaction. A concurrent writer on
// the same sheet makes it fail with sheet.ErrLocked instead of waiting.
func (s *Store) WriteSheet(ctx context.Context, name string, table *sheet.Table) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	var acquired bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtext($1))`, name).Scan(&acquired); err != nil {
		return classify(err)
	}
	if !acquired {
		return fmt.Errorf("%w: sheet %s is being written", sheet.ErrLocked, name)
	}

	types := table.Types
	if types == nil {
		types = map[string]sheet.ColumnType{}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO sheets (name, header, column_types) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET header = EXCLUDED.header, column_types = EXCLUDED.column_types, updated_at = NOW()
	`, name, table.Header, types)
	if err != nil {
		return classify(err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM sheet_rows WHERE sheet = $1`, name); err != nil {
		return classify(err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"sheet_rows"},
		[]string{"sheet", "position", "cells"},
		pgx.CopyFromSlice(len(table.Rows), func(i int) ([]any, error) {
			return []any{name, int32(i + 1), table.Rows[i]}, nil
		}),
	)
	if err != nil {
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// EnsureSheet creates an empty sheet when missing.
func (s *Store) EnsureSheet(ctx context.Context, name string, header []string) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sheets (name, header) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, header)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() > 0 {
		log.Info().Str("sheet", name).Msg("Created missing sheet")
	}
	return nil
}

// Snapshot exports every sheet, read from one consistent snapshot, as an
// .xlsx workbook.
func (s *Store) Snapshot(ctx context.Context, dst string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT name FROM sheets ORDER BY ordinal`)
	if err != nil {
		return classify(err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return classify(err)
	}

	tables := make(map[string]*sheet.Table, len(names))
	for _, n := range names {
		t, err := readSheet(ctx, tx, n)
		if err != nil {
			return err
		}
		tables[n] = t
	}

	return sheet.ExportXLSX(dst, names, tables)
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error {
	return nil
}

// classify maps driver errors onto the storage error kinds. Lock
// timeouts and serialization failures mean another writer holds the data.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return fmt.Errorf("%w: %v", sheet.ErrLocked, err)
		}
	}
	return fmt.Errorf("%w: %v", sheet.ErrUnavailable, err)
}
