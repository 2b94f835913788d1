// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/kv/kvtest"
	"github.com/sigil-dev/securegraph/internal/kv/sqlite"
)

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "kv.db")
}

func TestConformanceInMemory(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		b, err := sqlite.Open("")
		require.NoError(t, err)
		return b
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		b, err := sqlite.Open(testDBPath(t))
		require.NoError(t, err)
		return b
	})
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	b, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{{Key: []byte("k"), Timestamp: 9, Value: []byte("v")}}))
	require.NoError(t, b.Close())

	b, err = sqlite.Open(path)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ok, err := b.TableExists(ctx, "t")
	require.NoError(t, err)
	assert.True(t, ok)

	c, err := b.Scan(ctx, "t", nil, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.True(t, c.Next())
	assert.Equal(t, int64(9), c.Entry().Timestamp)
	assert.Equal(t, "v", string(c.Entry().Value))
}
