// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"sync"

	"github.com/sigil-dev/securegraph/internal/kv"
)

// Iterator is a pull iterator over elements read lazily from storage.
// Callers must Close it; Close is idempotent.
type Iterator[T any] struct {
	next    func() (T, bool, error)
	release func() error

	cur  T
	err  error
	done bool

	closeOnce sync.Once
	closeErr  error
}

func newIterator[T any](next func() (T, bool, error), release func() error) *Iterator[T] {
	return &Iterator[T]{next: next, release: release}
}

func emptyIterator[T any]() *Iterator[T] {
	return newIterator(func() (T, bool, error) {
		var zero T
		return zero, false, nil
	}, nil)
}

func sliceIterator[T any](items []T) *Iterator[T] {
	i := 0
	return newIterator(func() (T, bool, error) {
		if i >= len(items) {
			var zero T
			return zero, false, nil
		}
		i++
		return items[i-1], true, nil
	}, nil)
}

func (it *Iterator[T]) Next() bool {
	if it.done {
		return false
	}
	v, ok, err := it.next()
	if err != nil || !ok {
		it.err = err
		it.done = true
		var zero T
		it.cur = zero
		return false
	}
	it.cur = v
	return true
}

// Value returns the element read by the last successful Next.
func (it *Iterator[T]) Value() T {
	return it.cur
}

func (it *Iterator[T]) Err() error {
	return it.err
}

func (it *Iterator[T]) Close() error {
	it.closeOnce.Do(func() {
		it.done = true
		if it.release != nil {
			it.closeErr = it.release()
		}
	})
	return it.closeErr
}

// Collect drains and closes it.
func Collect[T any](it *Iterator[T]) ([]T, error) {
	defer func() { _ = it.Close() }()
	var out []T
	for it.Next() {
		out = append(out, it.Value())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, it.Close()
}

// rowElements turns whole rows into elements, skipping rows that do not
// reconstruct.
func rowElements[T any](ctx context.Context, kind ElementKind, rows *kv.RowIterator, build func([]kv.Cell) (T, bool, error)) *Iterator[T] {
	return newIterator(func() (T, bool, error) {
		var zero T
		for rows.Next() {
			el, ok, err := build(rows.Row())
			if err != nil {
				return zero, false, err
			}
			if !ok {
				continue
			}
			recordElementRead(ctx, kind)
			return el, true, nil
		}
		return zero, false, rows.Err()
	}, rows.Close)
}
