// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package kvtest holds the conformance suite every kv backend must pass.
package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Opener returns a fresh, empty backend. The suite closes it.
type Opener func(t *testing.T) kv.Backend

// Run exercises the Backend contract against open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b kv.Backend)
	}{
		{"CreateTableIsIdempotent", testCreateTableIsIdempotent},
		{"MissingTable", testMissingTable},
		{"ApplyAndScanInOrder", testApplyAndScanInOrder},
		{"PutReplacesAndDeleteRemoves", testPutReplacesAndDeleteRemoves},
		{"ScanBounds", testScanBounds},
		{"TablesAreIsolated", testTablesAreIsolated},
		{"DeleteRange", testDeleteRange},
		{"LargeScanSpansPages", testLargeScanSpansPages},
		{"CursorSurvivesConcurrentWrite", testCursorSurvivesConcurrentWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

func collect(t *testing.T, c kv.Cursor) []kv.Entry {
	t.Helper()
	defer func() { require.NoError(t, c.Close()) }()
	var out []kv.Entry
	for c.Next() {
		out = append(out, c.Entry())
	}
	require.NoError(t, c.Err())
	return out
}

func keys(entries []kv.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Key)
	}
	return out
}

func put(key string, ts int64, value string) kv.Write {
	return kv.Write{Key: []byte(key), Timestamp: ts, Value: []byte(value)}
}

func testCreateTableIsIdempotent(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.CreateTable(ctx, "t"))

	ok, err := b.TableExists(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testMissingTable(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	ok, err := b.TableExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.Scan(ctx, "nope", nil, nil)
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeKVTableNotFound))

	err = b.Apply(ctx, "nope", []kv.Write{put("a", 1, "x")})
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeKVTableNotFound))
}

func testApplyAndScanInOrder(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{
		put("b", 2, "B"),
		put("a\x00z", 3, "AZ"),
		put("a", 1, "A"),
		put("c", 4, ""),
	}))

	got := collect(t, mustScan(t, b, "t", nil, nil))
	assert.Equal(t, []string{"a", "a\x00z", "b", "c"}, keys(got))
	assert.Equal(t, int64(1), got[0].Timestamp)
	assert.Equal(t, "A", string(got[0].Value))
	assert.Empty(t, got[3].Value)
}

func testPutReplacesAndDeleteRemoves(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{put("k", 1, "old"), put("j", 1, "j")}))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{
		put("k", 2, "new"),
		{Key: []byte("j"), Delete: true},
		{Key: []byte("missing"), Delete: true},
	}))

	got := collect(t, mustScan(t, b, "t", nil, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "new", string(got[0].Value))
	assert.Equal(t, int64(2), got[0].Timestamp)

	// Writes inside one batch apply in order.
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{
		put("x", 3, "1"),
		{Key: []byte("x"), Delete: true},
		put("y", 4, "1"),
		{Key: []byte("y"), Delete: true},
		put("y", 5, "2"),
	}))
	got = collect(t, mustScan(t, b, "t", nil, nil))
	assert.Equal(t, []string{"k", "y"}, keys(got))
	assert.Equal(t, "2", string(got[1].Value))
}

func testScanBounds(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{
		put("a", 1, ""), put("b", 1, ""), put("c", 1, ""), put("d", 1, ""),
	}))

	assert.Equal(t, []string{"b", "c"}, keys(collect(t, mustScan(t, b, "t", []byte("b"), []byte("d")))))
	assert.Equal(t, []string{"c", "d"}, keys(collect(t, mustScan(t, b, "t", []byte("bb"), nil))))
	assert.Empty(t, collect(t, mustScan(t, b, "t", []byte("e"), nil)))
	assert.Empty(t, collect(t, mustScan(t, b, "t", []byte("b"), []byte("b"))))
}

func testTablesAreIsolated(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t1"))
	require.NoError(t, b.CreateTable(ctx, "t10"))
	require.NoError(t, b.Apply(ctx, "t1", []kv.Write{put("a", 1, "1")}))
	require.NoError(t, b.Apply(ctx, "t10", []kv.Write{put("a", 1, "10")}))

	got := collect(t, mustScan(t, b, "t1", nil, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "1", string(got[0].Value))
}

func testDeleteRange(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{
		put("a", 1, ""), put("b", 1, ""), put("c", 1, ""), put("d", 1, ""),
	}))

	require.NoError(t, b.DeleteRange(ctx, "t", []byte("b"), []byte("d")))
	assert.Equal(t, []string{"a", "d"}, keys(collect(t, mustScan(t, b, "t", nil, nil))))

	require.NoError(t, b.DeleteRange(ctx, "t", nil, nil))
	assert.Empty(t, collect(t, mustScan(t, b, "t", nil, nil)))
}

func testLargeScanSpansPages(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))

	const n = 1500
	writes := make([]kv.Write, 0, n)
	for i := range n {
		writes = append(writes, put(fmt.Sprintf("k%05d", i), int64(i), "v"))
	}
	require.NoError(t, b.Apply(ctx, "t", writes))

	got := collect(t, mustScan(t, b, "t", []byte("k00100"), []byte("k01400")))
	require.Len(t, got, 1300)
	assert.Equal(t, "k00100", string(got[0].Key))
	assert.Equal(t, "k01399", string(got[len(got)-1].Key))
}

func testCursorSurvivesConcurrentWrite(t *testing.T, b kv.Backend) {
	ctx := context.Background()
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{put("a", 1, ""), put("b", 1, "")}))

	c := mustScan(t, b, "t", nil, nil)
	require.True(t, c.Next())
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{put("c", 2, "")}))
	for c.Next() {
	}
	require.NoError(t, c.Err())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func mustScan(t *testing.T, b kv.Backend, table string, start, end []byte) kv.Cursor {
	t.Helper()
	c, err := b.Scan(context.Background(), table, start, end)
	require.NoError(t, err)
	return c
}
