// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite is a graph search index kept in a SQLite database. It
// stores one text document per readable property and answers free-text
// queries with candidate element ids.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/securegraph/internal/graph"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

var (
	_ graph.SearchIndex     = (*Index)(nil)
	_ graph.CandidateSource = (*Index)(nil)
)

// Index implements graph.SearchIndex and graph.CandidateSource. Writes go
// straight to the database, so Flush has nothing to do.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the index database at path. An empty path opens
// a private in-memory database.
func Open(path string) (*Index, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, sgerr.Errorf(sgerr.CodeSearchIndexFailure, "creating index directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, sgerr.Errorf(sgerr.CodeSearchIndexFailure, "opening index db: %w", err)
	}
	if path == "" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, sgerr.Errorf(sgerr.CodeSearchIndexFailure, "pinging index db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, sgerr.Errorf(sgerr.CodeSearchIndexFailure, "migrating index tables: %w", err)
	}
	return &Index{db: db, logger: slog.Default()}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	kind        TEXT NOT NULL,
	element_id  TEXT NOT NULL,
	element_vis TEXT NOT NULL,
	prop_key    TEXT NOT NULL,
	prop_name   TEXT NOT NULL,
	prop_vis    TEXT NOT NULL,
	body        TEXT NOT NULL,
	updated     TEXT NOT NULL,
	PRIMARY KEY (kind, element_id, prop_key, prop_name, prop_vis)
);

CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind, element_id);
`
	_, err := db.Exec(ddl)
	return err
}

// AddElement indexes every readable property of el and moves the element's
// existing documents to its current visibility. Documents of properties
// el does not carry are left alone: they may belong to other readers.
func (x *Index) AddElement(ctx context.Context, el graph.Element, _ visibility.Authorizations) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	kind := string(el.Kind())
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET element_vis = ? WHERE kind = ? AND element_id = ?`,
		string(el.Visibility()), kind, el.ID()); err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "updating element visibility: %w", err)
	}

	const upsert = `INSERT INTO documents (kind, element_id, element_vis, prop_key, prop_name, prop_vis, body, updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(kind, element_id, prop_key, prop_name, prop_vis) DO UPDATE SET
	element_vis = excluded.element_vis,
	body = excluded.body,
	updated = excluded.updated`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range el.Properties() {
		body, ok, err := documentBody(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert,
			kind, el.ID(), string(el.Visibility()),
			p.Key(), p.Name(), string(p.Visibility()), body, now); err != nil {
			return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "indexing property %s: %w", p.Name(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "committing transaction: %w", err)
	}
	return nil
}

// documentBody returns the lower-cased text of p's value. Streaming values
// are indexed only when marked for it.
func documentBody(ctx context.Context, p *graph.Property) (string, bool, error) {
	v, err := p.Value()
	if err != nil {
		return "", false, err
	}
	switch val := v.(type) {
	case nil:
		return "", false, nil
	case *graph.StreamingValue:
		if !val.SearchIndex {
			return "", false, nil
		}
		b, err := val.ReadAll(ctx)
		if err != nil {
			return "", false, err
		}
		return strings.ToLower(string(b)), true, nil
	default:
		return strings.ToLower(fmt.Sprint(val)), true, nil
	}
}

func (x *Index) RemoveElement(ctx context.Context, el graph.Element, _ visibility.Authorizations) error {
	if _, err := x.db.ExecContext(ctx,
		`DELETE FROM documents WHERE kind = ? AND element_id = ?`,
		string(el.Kind()), el.ID()); err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "removing element: %w", err)
	}
	return nil
}

func (x *Index) RemoveProperty(ctx context.Context, el graph.Element, p *graph.Property, _ visibility.Authorizations) error {
	if _, err := x.db.ExecContext(ctx,
		`DELETE FROM documents WHERE kind = ? AND element_id = ? AND prop_key = ? AND prop_name = ? AND prop_vis = ?`,
		string(el.Kind()), el.ID(), p.Key(), p.Name(), string(p.Visibility())); err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "removing property: %w", err)
	}
	return nil
}

// Candidates returns the ids of kind whose readable documents contain
// query. A document is readable when auths satisfy both the element and
// the property visibility.
func (x *Index) Candidates(ctx context.Context, kind graph.ElementKind, query string, auths visibility.Authorizations) ([]string, bool, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := x.db.QueryContext(ctx,
		`SELECT element_id, element_vis, prop_vis FROM documents
WHERE kind = ? AND body LIKE ? ESCAPE '\'
ORDER BY element_id`,
		string(kind), pattern)
	if err != nil {
		return nil, false, sgerr.Errorf(sgerr.CodeSearchQueryFailure, "querying documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	seen := make(map[string]struct{})
	for rows.Next() {
		var id, elementVis, propVis string
		if err := rows.Scan(&id, &elementVis, &propVis); err != nil {
			return nil, false, sgerr.Errorf(sgerr.CodeSearchQueryFailure, "scanning document: %w", err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		docVis := visibility.And(visibility.Visibility(elementVis), visibility.Visibility(propVis))
		ok, err := auths.CanRead(docVis)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, false, sgerr.Errorf(sgerr.CodeSearchQueryFailure, "iterating documents: %w", err)
	}
	x.logger.Debug("search candidates",
		slog.String("kind", string(kind)),
		slog.Int("count", len(ids)),
	)
	return ids, true, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (x *Index) Flush(context.Context) error { return nil }

func (x *Index) ClearData(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return sgerr.Errorf(sgerr.CodeSearchIndexFailure, "clearing documents: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (x *Index) Close() error {
	return x.db.Close()
}
