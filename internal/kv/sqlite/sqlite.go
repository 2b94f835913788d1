// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite is a kv backend stored in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/securegraph/internal/kv"
)

// pageSize is how many cells a cursor reads per query. Cursors never hold a
// connection between pages.
const pageSize = 512

func init() {
	kv.RegisterBackend("sqlite", func(cfg kv.BackendConfig) (kv.Backend, error) {
		return Open(cfg.Path)
	})
}

// Backend keeps every table in one cells table keyed by (table, key).
type Backend struct {
	db *sql.DB
}

var _ kv.Backend = (*Backend)(nil)

// Open opens (or creates) the database at path. An empty path opens a
// private in-memory database.
func Open(path string) (*Backend, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if path == "" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating kv tables: %w", err)
	}
	return &Backend{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS kv_tables (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS kv_cells (
	tbl TEXT    NOT NULL,
	k   BLOB    NOT NULL,
	ts  INTEGER NOT NULL,
	v   BLOB    NOT NULL,
	PRIMARY KEY (tbl, k)
) WITHOUT ROWID;
`
	_, err := db.Exec(ddl)
	return err
}

func (b *Backend) CreateTable(ctx context.Context, table string) error {
	_, err := b.db.ExecContext(ctx, `INSERT OR IGNORE INTO kv_tables(name) VALUES (?)`, table)
	if err != nil {
		return fmt.Errorf("creating table %q: %w", table, err)
	}
	return nil
}

func (b *Backend) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM kv_tables WHERE name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %q: %w", table, err)
	}
	return n > 0, nil
}

func (b *Backend) Apply(ctx context.Context, table string, writes []kv.Write) error {
	if err := b.requireTable(ctx, table); err != nil {
		return err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	put, err := tx.PrepareContext(ctx, `
INSERT INTO kv_cells(tbl, k, ts, v) VALUES (?, ?, ?, ?)
ON CONFLICT(tbl, k) DO UPDATE SET ts = excluded.ts, v = excluded.v`)
	if err != nil {
		return fmt.Errorf("preparing put: %w", err)
	}
	defer func() { _ = put.Close() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM kv_cells WHERE tbl = ? AND k = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer func() { _ = del.Close() }()

	for _, w := range writes {
		if w.Delete {
			_, err = del.ExecContext(ctx, table, w.Key)
		} else {
			value := w.Value
			if value == nil {
				value = []byte{}
			}
			_, err = put.ExecContext(ctx, table, w.Key, w.Timestamp, value)
		}
		if err != nil {
			return fmt.Errorf("applying write: %w", err)
		}
	}
	return tx.Commit()
}

func (b *Backend) Scan(ctx context.Context, table string, start, end []byte) (kv.Cursor, error) {
	if err := b.requireTable(ctx, table); err != nil {
		return nil, err
	}
	if start == nil {
		start = []byte{}
	}
	return &cursor{ctx: ctx, db: b.db, table: table, from: start, inclusive: true, end: end}, nil
}

func (b *Backend) DeleteRange(ctx context.Context, table string, start, end []byte) error {
	if err := b.requireTable(ctx, table); err != nil {
		return err
	}
	if start == nil {
		start = []byte{}
	}
	var err error
	if end == nil {
		_, err = b.db.ExecContext(ctx, `DELETE FROM kv_cells WHERE tbl = ? AND k >= ?`, table, start)
	} else {
		_, err = b.db.ExecContext(ctx, `DELETE FROM kv_cells WHERE tbl = ? AND k >= ? AND k < ?`, table, start, end)
	}
	if err != nil {
		return fmt.Errorf("deleting range: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) requireTable(ctx context.Context, table string) error {
	ok, err := b.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return kv.TableNotFound(table)
	}
	return nil
}

// cursor reads one page at a time, resuming after the last key seen.
type cursor struct {
	ctx       context.Context
	db        *sql.DB
	table     string
	from      []byte
	inclusive bool
	end       []byte

	page      []kv.Entry
	pos       int
	exhausted bool
	err       error
	cur       kv.Entry
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.exhausted {
			return false
		}
		if err := c.fetch(); err != nil {
			c.err = err
			return false
		}
		if len(c.page) == 0 {
			return false
		}
	}
	c.cur = c.page[c.pos]
	c.pos++
	return true
}

func (c *cursor) fetch() error {
	op := ">"
	if c.inclusive {
		op = ">="
	}
	query := `SELECT k, ts, v FROM kv_cells WHERE tbl = ? AND k ` + op + ` ?`
	args := []any{c.table, c.from}
	if c.end != nil {
		query += ` AND k < ?`
		args = append(args, c.end)
	}
	query += ` ORDER BY k LIMIT ?`
	args = append(args, pageSize)

	rows, err := c.db.QueryContext(c.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scanning cells: %w", err)
	}
	defer func() { _ = rows.Close() }()

	page := make([]kv.Entry, 0, pageSize)
	for rows.Next() {
		var e kv.Entry
		if err := rows.Scan(&e.Key, &e.Timestamp, &e.Value); err != nil {
			return fmt.Errorf("reading cell: %w", err)
		}
		page = append(page, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating cells: %w", err)
	}

	c.page = page
	c.pos = 0
	if len(page) < pageSize {
		c.exhausted = true
	}
	if len(page) > 0 {
		c.from = page[len(page)-1].Key
		c.inclusive = false
	}
	return nil
}

func (c *cursor) Entry() kv.Entry { return c.cur }
func (c *cursor) Err() error      { return c.err }

func (c *cursor) Close() error {
	c.exhausted = true
	c.page = nil
	return nil
}
