// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package badger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/kv/badger"
	"github.com/sigil-dev/securegraph/internal/kv/kvtest"
)

func TestConformanceInMemory(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		b, err := badger.Open(badger.InMemoryConfig())
		require.NoError(t, err)
		return b
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Backend {
		cfg := badger.DefaultConfig()
		cfg.Path = t.TempDir()
		cfg.SyncWrites = false
		cfg.GCInterval = 0
		b, err := badger.Open(cfg)
		require.NoError(t, err)
		return b
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := badger.Open(badger.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := badger.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "db")
	cfg.GCInterval = time.Hour

	b, err := badger.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, b.CreateTable(ctx, "t"))
	require.NoError(t, b.Apply(ctx, "t", []kv.Write{{Key: []byte("k"), Timestamp: 7, Value: []byte("v")}}))
	require.NoError(t, b.Close())

	b, err = badger.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	c, err := b.Scan(ctx, "t", nil, nil)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.True(t, c.Next())
	assert.Equal(t, "k", string(c.Entry().Key))
	assert.Equal(t, int64(7), c.Entry().Timestamp)
	assert.Equal(t, "v", string(c.Entry().Value))
	assert.False(t, c.Next())
}

func TestRegisteredFactoryUsesMemoryWithoutPath(t *testing.T) {
	b, err := kv.OpenBackend("badger", kv.BackendConfig{})
	require.NoError(t, err)
	require.NoError(t, b.Close())
}
