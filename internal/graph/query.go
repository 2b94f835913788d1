// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// MatchAll is the query string that selects every element.
const MatchAll = "*"

// HasContainer is one property predicate. A multi-valued property matches
// when any of its readable values does.
type HasContainer struct {
	Name  string
	Op    CompareOp
	Value any
}

func (h HasContainer) Match(el Element) (bool, error) {
	for _, p := range el.PropertiesByName(h.Name) {
		v, err := p.Value()
		if err != nil {
			return false, err
		}
		if h.Op.evaluate(v, h.Value) {
			return true, nil
		}
	}
	return false, nil
}

// Query filters a sorted element stream. Every call to Vertices or Edges
// restarts it from storage.
type Query struct {
	g           *Graph
	queryString string
	auths       visibility.Authorizations
	hints       FetchHints
	has         []HasContainer
	skip        int
	limit       int
}

// Query starts a query. An empty string or MatchAll applies no free-text
// filter; anything else must appear, case-insensitively, in a readable
// property value.
func (g *Graph) Query(queryString string, auths visibility.Authorizations) *Query {
	return &Query{g: g, queryString: queryString, auths: auths, hints: FetchAll, limit: -1}
}

func (q *Query) Has(name string, value any) *Query {
	return q.HasCompare(name, Equal, value)
}

func (q *Query) HasCompare(name string, op CompareOp, value any) *Query {
	q.has = append(q.has, HasContainer{Name: name, Op: op, Value: value})
	return q
}

func (q *Query) Skip(n int) *Query {
	q.skip = max(n, 0)
	return q
}

// Limit caps the number of results. A negative n removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Vertices(ctx context.Context) (*Iterator[*Vertex], error) {
	src, err := queryVertexSource(ctx, q)
	if err != nil {
		return nil, err
	}
	return filterElements(ctx, q, src), nil
}

func (q *Query) Edges(ctx context.Context) (*Iterator[*Edge], error) {
	src, err := queryEdgeSource(ctx, q)
	if err != nil {
		return nil, err
	}
	return filterElements(ctx, q, src), nil
}

func (q *Query) freeText() string {
	if q.queryString == MatchAll {
		return ""
	}
	return q.queryString
}

// candidates asks the search index to narrow the scan. ok is false when the
// index cannot.
func (q *Query) candidates(ctx context.Context, kind ElementKind) ([]string, bool, error) {
	text := q.freeText()
	if text == "" {
		return nil, false, nil
	}
	cs, ok := q.g.index.(CandidateSource)
	if !ok {
		return nil, false, nil
	}
	ids, ok, err := cs.Candidates(ctx, kind, text, q.auths)
	if err != nil || !ok {
		return nil, false, err
	}
	slices.Sort(ids)
	return slices.Compact(ids), true, nil
}

func queryVertexSource(ctx context.Context, q *Query) (*Iterator[*Vertex], error) {
	ids, ok, err := q.candidates(ctx, KindVertex)
	if err != nil {
		return nil, err
	}
	if !ok {
		return q.g.GetVertices(ctx, q.hints, q.auths)
	}
	return sortedByID(q.g.GetVerticesByID(ctx, ids, q.hints, q.auths))
}

func queryEdgeSource(ctx context.Context, q *Query) (*Iterator[*Edge], error) {
	ids, ok, err := q.candidates(ctx, KindEdge)
	if err != nil {
		return nil, err
	}
	if !ok {
		return q.g.GetEdges(ctx, q.hints, q.auths)
	}
	return sortedByID(q.g.GetEdgesByID(ctx, ids, q.hints, q.auths))
}

// sortedByID restores id order after an unordered batch read.
func sortedByID[T Element](it *Iterator[T], err error) (*Iterator[T], error) {
	if err != nil {
		return nil, err
	}
	all, err := Collect(it)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(all, func(a, b T) int { return strings.Compare(a.ID(), b.ID()) })
	return sliceIterator(all), nil
}

// filterElements applies the predicates, then skip and limit. The count
// only advances for elements that pass every predicate, and an element is
// yielded while skip < count <= skip+limit.
func filterElements[T Element](ctx context.Context, q *Query, src *Iterator[T]) *Iterator[T] {
	has := slices.Clone(q.has)
	text := strings.ToLower(q.freeText())
	skip, limit := q.skip, q.limit
	count := 0
	return newIterator(func() (T, bool, error) {
		var zero T
		for {
			if limit >= 0 && count >= skip+limit {
				return zero, false, nil
			}
			if !src.Next() {
				return zero, false, src.Err()
			}
			el := src.Value()
			ok, err := matchAll(el, has)
			if err != nil {
				return zero, false, err
			}
			if !ok {
				continue
			}
			if text != "" {
				ok, err := matchText(ctx, el, text)
				if err != nil {
					return zero, false, err
				}
				if !ok {
					continue
				}
			}
			count++
			if count <= skip {
				continue
			}
			return el, true, nil
		}
	}, src.Close)
}

func matchAll(el Element, has []HasContainer) (bool, error) {
	for _, h := range has {
		ok, err := h.Match(el)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// matchText reports whether any readable property value contains text,
// which must already be lower case. Streaming values take part only when
// marked for search indexing.
func matchText(ctx context.Context, el Element, text string) (bool, error) {
	for _, p := range el.Properties() {
		v, err := p.Value()
		if err != nil {
			return false, err
		}
		var s string
		switch x := v.(type) {
		case nil:
			continue
		case *StreamingValue:
			if !x.SearchIndex {
				continue
			}
			b, err := x.ReadAll(ctx)
			if err != nil {
				return false, err
			}
			s = string(b)
		default:
			s = fmt.Sprint(v)
		}
		if strings.Contains(strings.ToLower(s), text) {
			return true, nil
		}
	}
	return false, nil
}
