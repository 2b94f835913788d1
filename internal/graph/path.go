// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Path is a sequence of vertex ids from start to end.
type Path []string

type pathOptions struct {
	dir Direction
}

// PathOption configures FindPaths.
type PathOption func(*pathOptions)

// WithDirection selects the edges a path may follow. The default is
// DirectionBoth.
func WithDirection(d Direction) PathOption {
	return func(o *pathOptions) {
		o.dir = d
	}
}

// FindPaths returns every simple path from startID to endID that uses at
// most maxHops edges, shortest first. Both endpoints must be visible to
// auths, and paths only pass through visible vertices along visible edges.
func (g *Graph) FindPaths(ctx context.Context, startID, endID string, maxHops int, auths visibility.Authorizations, opts ...PathOption) (paths []Path, err error) {
	o := pathOptions{dir: DirectionBoth}
	for _, opt := range opts {
		opt(&o)
	}
	if maxHops < 0 {
		return nil, sgerr.New(sgerr.CodeGraphPathInvalidInput, "max hops must not be negative",
			sgerr.Field("max_hops", maxHops))
	}

	ctx, end := startOp(ctx, "FindPaths",
		attribute.String("start_id", startID),
		attribute.String("end_id", endID),
		attribute.Int("max_hops", maxHops),
		attribute.String("direction", o.dir.String()),
	)
	defer func() {
		end(err)
		if err == nil {
			recordPaths(ctx, len(paths))
		}
	}()

	for _, id := range []string{startID, endID} {
		v, err := g.GetVertex(ctx, id, FetchNone, auths)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
	}
	if startID == endID {
		return []Path{{startID}}, nil
	}

	hints := FetchOutEdgeRefs
	switch o.dir {
	case DirectionIn:
		hints = FetchInEdgeRefs
	case DirectionBoth:
		hints = FetchEdgeRefs
	}

	frontier := []Path{{startID}}
	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		adjacent, err := g.adjacency(ctx, frontier, o.dir, hints, auths)
		if err != nil {
			return nil, err
		}
		var next []Path
		for _, p := range frontier {
			for _, n := range adjacent[p[len(p)-1]] {
				if slices.Contains(p, n) {
					continue
				}
				extended := append(slices.Clone(p), n)
				if n == endID {
					paths = append(paths, extended)
					continue
				}
				if depth < maxHops {
					next = append(next, extended)
				}
			}
		}
		frontier = next
	}
	return paths, nil
}

// adjacency reads the last vertex of every frontier path and returns its
// sorted, distinct neighbours in dir. Vertices hidden from auths have none.
func (g *Graph) adjacency(ctx context.Context, frontier []Path, dir Direction, hints FetchHints, auths visibility.Authorizations) (map[string][]string, error) {
	ids := make([]string, 0, len(frontier))
	for _, p := range frontier {
		ids = append(ids, p[len(p)-1])
	}
	it, err := g.GetVerticesByID(ctx, ids, hints, auths)
	if err != nil {
		return nil, err
	}
	vertices, err := Collect(it)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(vertices))
	for _, v := range vertices {
		neighbours := v.VertexIDs(dir)
		slices.Sort(neighbours)
		out[v.id] = slices.Compact(neighbours)
	}
	return out, nil
}
