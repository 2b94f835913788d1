// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"context"

	"golang.org/x/sync/errgroup"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// BatchScanner reads whole rows from many ranges with a fixed number of
// workers. Rows come back in no particular order.
type BatchScanner struct {
	client  *Client
	table   string
	auths   visibility.Authorizations
	threads int
	ranges  []Range
	opts    scanOptions
}

func (c *Client) NewBatchScanner(table string, auths visibility.Authorizations, threads int) *BatchScanner {
	if threads < 1 {
		threads = 1
	}
	return &BatchScanner{client: c, table: table, auths: auths, threads: threads}
}

func (b *BatchScanner) SetRanges(ranges []Range) {
	b.ranges = append([]Range(nil), ranges...)
}

func (b *BatchScanner) FetchColumnFamily(family string) {
	b.opts.fetchFamily(family)
}

func (b *BatchScanner) SetRowFilter(f RowFilter) {
	b.opts.rowFilter = f
}

// Rows starts the workers. Closing the iterator cancels them.
func (b *BatchScanner) Rows(ctx context.Context) (*RowIterator, error) {
	if len(b.ranges) == 0 {
		return newRowIterator(func() ([]Cell, error) { return nil, nil }, nil), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	work := make(chan Range)
	out := make(chan []Cell, b.threads)

	g.Go(func() error {
		defer close(work)
		for _, r := range b.ranges {
			select {
			case work <- r:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for range min(b.threads, len(b.ranges)) {
		g.Go(func() error {
			for r := range work {
				if err := b.scanRange(gctx, r, out); err != nil {
					return err
				}
			}
			return nil
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(out)
	}()

	next := func() ([]Cell, error) {
		row, ok := <-out
		if !ok {
			return nil, waitErr
		}
		return row, nil
	}
	release := func() error {
		cancel()
		for range out {
		}
		return nil
	}
	return newRowIterator(next, release), nil
}

func (b *BatchScanner) scanRange(ctx context.Context, r Range, out chan<- []Cell) error {
	start, end := r.bounds()
	cursor, err := b.client.backend.Scan(ctx, b.table, start, end)
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeKVBackendReadFailure, "opening batch scan", sgerr.FieldTable(b.table))
	}
	defer func() { _ = cursor.Close() }()

	src := b.client.newRowSource(ctx, cursor, b.table, b.auths, b.opts)
	for {
		row, err := src.next()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		select {
		case out <- row:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
