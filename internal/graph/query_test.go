// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

func seedPeople(t *testing.T, tg *testGraph) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := tg.PrepareVertex(fmt.Sprintf("v%d", i), visA).
			SetProperty("age", 20+i, visA).
			SetProperty("name", fmt.Sprintf("Person %d", i), visA).
			Save(ctx, authsA)
		require.NoError(t, err)
	}
}

func TestQuery_SkipLimit(t *testing.T) {
	tg := newTestGraph(t)
	seedPeople(t, tg)
	ctx := context.Background()

	assert.Equal(t, []string{"v3", "v4"}, ids(tg.Query(graph.MatchAll, authsA).Skip(2).Limit(2).Vertices(ctx)))
	assert.Equal(t, []string{"v5"}, ids(tg.Query("", authsA).Skip(4).Limit(2).Vertices(ctx)))
	assert.Empty(t, ids(tg.Query("", authsA).Skip(5).Vertices(ctx)))
	assert.Empty(t, ids(tg.Query("", authsA).Limit(0).Vertices(ctx)))
	assert.Len(t, ids(tg.Query("", authsA).Limit(-1).Vertices(ctx)), 5)
}

func TestQuery_SkipCountsMatchesOnly(t *testing.T) {
	tg := newTestGraph(t)
	seedPeople(t, tg)
	ctx := context.Background()

	got := ids(tg.Query("", authsA).HasCompare("age", graph.GreaterThan, 22).Skip(1).Limit(1).Vertices(ctx))
	assert.Equal(t, []string{"v4"}, got)
}

func TestQuery_Compare(t *testing.T) {
	tg := newTestGraph(t)
	seedPeople(t, tg)
	ctx := context.Background()

	cases := []struct {
		op    graph.CompareOp
		value any
		want  []string
	}{
		{graph.Equal, 23, []string{"v3"}},
		{graph.Equal, uint8(23), []string{"v3"}},
		{graph.Equal, 23.0, []string{"v3"}},
		{graph.NotEqual, 23, []string{"v1", "v2", "v4", "v5"}},
		{graph.GreaterThan, 23, []string{"v4", "v5"}},
		{graph.GreaterThanEqual, 23, []string{"v3", "v4", "v5"}},
		{graph.LessThan, 23, []string{"v1", "v2"}},
		{graph.LessThanEqual, 21, []string{"v1"}},
		{graph.In, []int{21, 25, 99}, []string{"v1", "v5"}},
		{graph.GreaterThan, "text", nil},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s %v", tc.op, tc.value), func(t *testing.T) {
			got := ids(tg.Query("", authsA).HasCompare("age", tc.op, tc.value).Vertices(ctx))
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQuery_CompareStringsAndTimes(t *testing.T) {
	tg := newTestGraph(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"carol", "alice", "bob"} {
		_, err := tg.PrepareVertex(name, visA).
			SetProperty("name", name, visA).
			SetProperty("joined", base.AddDate(0, i, 0), visA).
			Save(ctx, authsA)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"bob", "carol"},
		ids(tg.Query("", authsA).HasCompare("name", graph.GreaterThan, "alice").Vertices(ctx)))
	assert.Equal(t, []string{"alice", "bob"},
		ids(tg.Query("", authsA).HasCompare("joined", graph.GreaterThanEqual, base.AddDate(0, 1, 0)).Vertices(ctx)))
	assert.Equal(t, []string{"alice"},
		ids(tg.Query("", authsA).Has("name", "alice").Vertices(ctx)))
}

func TestQuery_FreeText(t *testing.T) {
	tg := newTestGraph(t)
	seedPeople(t, tg)
	ctx := context.Background()

	assert.Equal(t, []string{"v3"}, ids(tg.Query("person 3", authsA).Vertices(ctx)))
	assert.Len(t, ids(tg.Query("PERSON", authsA).Vertices(ctx)), 5)
	assert.Empty(t, ids(tg.Query("nobody", authsA).Vertices(ctx)))
}

func TestQuery_PropertyVisibility(t *testing.T) {
	tg := newTestGraph(t)
	ctx := context.Background()
	_, err := tg.PrepareVertex("v1", visibility.Empty).
		SetProperty("codename", "falcon", visB).
		Save(ctx, authsAB)
	require.NoError(t, err)

	assert.Empty(t, ids(tg.Query("falcon", authsA).Vertices(ctx)))
	assert.Empty(t, ids(tg.Query("", authsA).Has("codename", "falcon").Vertices(ctx)))
	assert.Equal(t, []string{"v1"}, ids(tg.Query("falcon", authsB).Vertices(ctx)))
}

func TestQuery_Edges(t *testing.T) {
	tg := newTestGraph(t)
	ctx := context.Background()
	v1 := tg.addVertex(t, "v1", visA)
	v2 := tg.addVertex(t, "v2", visA)
	for i, w := range []int{5, 1, 3} {
		_, err := tg.PrepareEdge(fmt.Sprintf("e%d", i), v1, v2, "rates", visA).
			SetProperty("weight", w, visA).
			Save(ctx, authsA)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"e0", "e2"},
		ids(tg.Query("", authsA).HasCompare("weight", graph.GreaterThanEqual, 3).Edges(ctx)))
}

type candidateIndex struct {
	graph.DefaultSearchIndex
	ids   []string
	calls int
}

func (c *candidateIndex) Candidates(_ context.Context, kind graph.ElementKind, _ string, _ visibility.Authorizations) ([]string, bool, error) {
	c.calls++
	if kind != graph.KindVertex {
		return nil, false, nil
	}
	return c.ids, true, nil
}

func TestQuery_CandidateSource(t *testing.T) {
	idx := &candidateIndex{ids: []string{"v4", "v2", "v2", "v3", "missing"}}
	tg := newTestGraph(t, func(o *graph.Options) { o.SearchIndex = idx })
	seedPeople(t, tg)
	ctx := context.Background()

	// Candidates are sorted and still re-checked against the query text.
	assert.Equal(t, []string{"v2", "v3", "v4"}, ids(tg.Query("person", authsA).Vertices(ctx)))
	assert.Equal(t, []string{"v3"}, ids(tg.Query("person 3", authsA).Vertices(ctx)))
	assert.Equal(t, 2, idx.calls)

	// Match-all queries never consult the index.
	assert.Len(t, ids(tg.Query(graph.MatchAll, authsA).Vertices(ctx)), 5)
	assert.Equal(t, 2, idx.calls)
}

func TestParseCompareOp(t *testing.T) {
	for in, want := range map[string]graph.CompareOp{
		"=": graph.Equal, "ne": graph.NotEqual, ">": graph.GreaterThan, "GTE": graph.GreaterThanEqual,
		"lt": graph.LessThan, "<=": graph.LessThanEqual, "in": graph.In,
	} {
		got, err := graph.ParseCompareOp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := graph.ParseCompareOp("~")
	assert.Error(t, err)
}
