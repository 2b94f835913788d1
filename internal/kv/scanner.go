// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"context"
	"sync"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// RowFilter decides whether a whole row, after visibility filtering, is
// returned by a scan.
type RowFilter func(row []Cell) bool

// HasFamily accepts rows holding at least one readable cell of family.
func HasFamily(family string) RowFilter {
	return func(row []Cell) bool {
		for _, c := range row {
			if c.Key.Family == family {
				return true
			}
		}
		return false
	}
}

type scanOptions struct {
	families  map[string]struct{}
	rowFilter RowFilter
}

func (o *scanOptions) fetchFamily(family string) {
	if o.families == nil {
		o.families = make(map[string]struct{})
	}
	o.families[family] = struct{}{}
}

// Scanner reads whole rows from one range of a table in key order.
type Scanner struct {
	client *Client
	table  string
	auths  visibility.Authorizations
	rng    Range
	opts   scanOptions
}

func (c *Client) NewScanner(table string, auths visibility.Authorizations) *Scanner {
	return &Scanner{client: c, table: table, auths: auths}
}

func (s *Scanner) SetRange(r Range) {
	s.rng = r
}

// FetchColumnFamily restricts the scan to the named families. The row
// deletion marker is always returned when present.
func (s *Scanner) FetchColumnFamily(family string) {
	s.opts.fetchFamily(family)
}

func (s *Scanner) SetRowFilter(f RowFilter) {
	s.opts.rowFilter = f
}

// Rows starts the scan. The caller must Close the iterator.
func (s *Scanner) Rows(ctx context.Context) (*RowIterator, error) {
	start, end := s.rng.bounds()
	cursor, err := s.client.backend.Scan(ctx, s.table, start, end)
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeKVBackendReadFailure, "opening scan", sgerr.FieldTable(s.table))
	}
	src := s.client.newRowSource(ctx, cursor, s.table, s.auths, s.opts)
	return newRowIterator(src.next, cursor.Close), nil
}

// rowSource groups cursor entries into rows and applies row deletion,
// family selection, visibility and the row filter, in that order.
type rowSource struct {
	ctx         context.Context
	cursor      Cursor
	table       string
	eval        *visibility.Evaluator
	opts        scanOptions
	rowDeletion bool
	pending     *Cell
}

func (c *Client) newRowSource(ctx context.Context, cursor Cursor, table string, auths visibility.Authorizations, opts scanOptions) *rowSource {
	return &rowSource{
		ctx:         ctx,
		cursor:      cursor,
		table:       table,
		eval:        visibility.NewEvaluator(auths),
		opts:        opts,
		rowDeletion: c.RowDeletionAttached(table),
	}
}

func (s *rowSource) next() ([]Cell, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := s.readRawRow()
		if err != nil || raw == nil {
			return nil, err
		}
		row, err := s.filter(raw)
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		if s.opts.rowFilter != nil && !s.opts.rowFilter(row) {
			continue
		}
		return row, nil
	}
}

// readRawRow returns every stored cell of the next row, or nil at the end.
func (s *rowSource) readRawRow() ([]Cell, error) {
	var row []Cell
	if s.pending != nil {
		row = append(row, *s.pending)
		s.pending = nil
	}
	for s.cursor.Next() {
		e := s.cursor.Entry()
		key, err := DecodeKey(e.Key)
		if err != nil {
			return nil, sgerr.With(err, sgerr.FieldTable(s.table))
		}
		key.Timestamp = e.Timestamp
		c := Cell{Key: key, Value: e.Value}
		if len(row) > 0 && row[0].Key.Row != key.Row {
			s.pending = &c
			return row, nil
		}
		row = append(row, c)
	}
	if err := s.cursor.Err(); err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeKVBackendReadFailure, "scanning", sgerr.FieldTable(s.table))
	}
	return row, nil
}

func (s *rowSource) filter(raw []Cell) ([]Cell, error) {
	var deletedAt int64
	deleted := false
	if s.rowDeletion {
		deletedAt, deleted = deletionTimestamp(raw)
	}

	out := make([]Cell, 0, len(raw))
	for _, c := range raw {
		marker := c.IsDeleteRowMarker()
		if deleted && (marker || c.Key.Timestamp <= deletedAt) {
			continue
		}
		if s.opts.families != nil && !marker {
			if _, ok := s.opts.families[c.Key.Family]; !ok {
				continue
			}
		}
		ok, err := s.eval.CanRead(c.Key.Visibility)
		if err != nil {
			return nil, sgerr.With(err, sgerr.FieldTable(s.table), sgerr.FieldRow(c.Key.Row))
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// RowIterator is a pull iterator over whole rows. Close releases the
// underlying cursor and is safe to call more than once.
type RowIterator struct {
	next    func() ([]Cell, error)
	release func() error

	row  []Cell
	err  error
	done bool

	closeOnce sync.Once
	closeErr  error
}

func newRowIterator(next func() ([]Cell, error), release func() error) *RowIterator {
	return &RowIterator{next: next, release: release}
}

func (it *RowIterator) Next() bool {
	if it.done {
		return false
	}
	row, err := it.next()
	if err != nil {
		it.err = err
		it.done = true
		return false
	}
	if row == nil {
		it.done = true
		return false
	}
	it.row = row
	return true
}

// Row returns the current row's cells in key order.
func (it *RowIterator) Row() []Cell {
	return it.row
}

func (it *RowIterator) Err() error {
	return it.err
}

func (it *RowIterator) Close() error {
	it.closeOnce.Do(func() {
		it.done = true
		if it.release != nil {
			it.closeErr = it.release()
		}
	})
	return it.closeErr
}
