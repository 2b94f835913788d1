// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package serializer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/serializer"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

func TestMsgpackNormalizesScalars(t *testing.T) {
	s := serializer.New()
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "string", in: "joe", want: "joe"},
		{name: "int", in: 42, want: int64(42)},
		{name: "int8", in: int8(-3), want: int64(-3)},
		{name: "float32", in: float32(1.5), want: float64(1.5)},
		{name: "float64", in: 2.25, want: 2.25},
		{name: "bool", in: true, want: true},
		{name: "bytes", in: []byte{1, 2}, want: []byte{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := s.Serialize(tt.in)
			require.NoError(t, err)
			got, err := s.Deserialize(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("time", func(t *testing.T) {
		raw, err := s.Serialize(when)
		require.NoError(t, err)
		got, err := s.Deserialize(raw)
		require.NoError(t, err)
		ts, ok := got.(time.Time)
		require.True(t, ok)
		assert.True(t, when.Equal(ts))
	})
}

func TestMsgpackMapsDecodeToStringKeys(t *testing.T) {
	s := serializer.New()
	raw, err := s.Serialize(map[string]any{"source": "import", "confidence": 0.5})
	require.NoError(t, err)

	got, err := s.Deserialize(raw)
	require.NoError(t, err)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "import", m["source"])
	assert.Equal(t, 0.5, m["confidence"])
}

func TestMsgpackRejectsGarbage(t *testing.T) {
	_, err := serializer.New().Deserialize([]byte{0xc1})
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeSerializerDecodeFailure))
}

func TestMsgpackRejectsUnsupportedType(t *testing.T) {
	_, err := serializer.New().Serialize(make(chan int))
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeSerializerEncodeFailure))
}
