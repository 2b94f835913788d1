// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"slices"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// ElementKind distinguishes vertices from edges.
type ElementKind string

const (
	KindVertex ElementKind = "vertex"
	KindEdge   ElementKind = "edge"
)

// Direction selects edges relative to a vertex.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionIn:
		return "in"
	case DirectionBoth:
		return "both"
	}
	return "unknown"
}

// ParseDirection accepts "out", "in" and "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out", "OUT":
		return DirectionOut, nil
	case "in", "IN":
		return DirectionIn, nil
	case "both", "BOTH", "":
		return DirectionBoth, nil
	}
	return 0, sgerr.New(sgerr.CodeGraphQueryInvalidInput, "unknown direction", sgerr.Field("direction", s))
}

// Element is a vertex or an edge as seen by one set of authorizations.
type Element interface {
	ID() string
	Kind() ElementKind
	Visibility() visibility.Visibility
	// Properties returns the readable properties ordered by key, name and
	// visibility.
	Properties() []*Property
	Property(key, name string) *Property
	PropertyWithVisibility(key, name string, vis visibility.Visibility) *Property
	PropertiesByName(name string) []*Property
	PropertyValue(name string) (any, error)
	PropertyValueAt(name string, index int) (any, error)
	PropertyValues(name string) ([]any, error)
	FetchHints() FetchHints
	Authorizations() visibility.Authorizations

	base() *element
}

type element struct {
	id    string
	kind  ElementKind
	vis   visibility.Visibility
	props []*Property
	hints FetchHints
	auths visibility.Authorizations
}

func newElement(kind ElementKind, id string, vis visibility.Visibility, props []*Property, hints FetchHints, auths visibility.Authorizations) element {
	props = slices.Clone(props)
	slices.SortStableFunc(props, compareProperties)
	return element{id: id, kind: kind, vis: vis, props: props, hints: hints, auths: auths}
}

func (e *element) ID() string                                { return e.id }
func (e *element) Kind() ElementKind                         { return e.kind }
func (e *element) Visibility() visibility.Visibility         { return e.vis }
func (e *element) FetchHints() FetchHints                    { return e.hints }
func (e *element) Authorizations() visibility.Authorizations { return e.auths }
func (e *element) base() *element                            { return e }

func (e *element) Properties() []*Property {
	return slices.Clone(e.props)
}

// Property returns the first property with key and name, or nil.
func (e *element) Property(key, name string) *Property {
	for _, p := range e.props {
		if p.matches(key, name) {
			return p
		}
	}
	return nil
}

func (e *element) PropertyWithVisibility(key, name string, vis visibility.Visibility) *Property {
	for _, p := range e.props {
		if p.matches(key, name) && p.vis == vis {
			return p
		}
	}
	return nil
}

func (e *element) PropertiesByName(name string) []*Property {
	var out []*Property
	for _, p := range e.props {
		if p.name == name {
			out = append(out, p)
		}
	}
	return out
}

// PropertyValue returns the value of the first property named name, or nil
// when there is none.
func (e *element) PropertyValue(name string) (any, error) {
	return e.PropertyValueAt(name, 0)
}

// PropertyValueAt returns the index-th value of name in key order, or nil
// when there are not that many.
func (e *element) PropertyValueAt(name string, index int) (any, error) {
	i := 0
	for _, p := range e.props {
		if p.name != name {
			continue
		}
		if i == index {
			return p.Value()
		}
		i++
	}
	return nil, nil
}

func (e *element) PropertyValues(name string) ([]any, error) {
	var out []any
	for _, p := range e.props {
		if p.name != name {
			continue
		}
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// putProperty replaces the property with the same identity or adds p.
func (e *element) putProperty(p *Property) {
	for i, existing := range e.props {
		if existing.matches(p.key, p.name) && existing.vis == p.vis {
			e.props[i] = p
			return
		}
	}
	e.props = append(e.props, p)
	slices.SortStableFunc(e.props, compareProperties)
}

func (e *element) removeProperty(p *Property) {
	e.props = slices.DeleteFunc(e.props, func(x *Property) bool { return x == p })
}

func (e *element) resort() {
	slices.SortStableFunc(e.props, compareProperties)
}

// Vertex is a graph vertex together with the edge references it was read
// with.
type Vertex struct {
	element
	outEdges map[string]EdgeInfo
	inEdges  map[string]EdgeInfo
}

func newVertex(id string, vis visibility.Visibility, props []*Property, hints FetchHints, auths visibility.Authorizations) *Vertex {
	return &Vertex{
		element:  newElement(KindVertex, id, vis, props, hints, auths),
		outEdges: make(map[string]EdgeInfo),
		inEdges:  make(map[string]EdgeInfo),
	}
}

func (v *Vertex) refs(dir Direction) []EdgeRef {
	var out []EdgeRef
	collect := func(m map[string]EdgeInfo) {
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			out = append(out, EdgeRef{EdgeID: id, EdgeInfo: m[id]})
		}
	}
	if dir == DirectionOut || dir == DirectionBoth {
		collect(v.outEdges)
	}
	if dir == DirectionIn || dir == DirectionBoth {
		collect(v.inEdges)
	}
	return out
}

// EdgeInfos returns the edge references in dir, out edges first when dir
// is DirectionBoth, each group ordered by edge id.
func (v *Vertex) EdgeInfos(dir Direction) []EdgeRef {
	return v.refs(dir)
}

// EdgeIDs returns the ids of the edges in dir. A self loop appears once per
// direction.
func (v *Vertex) EdgeIDs(dir Direction) []string {
	refs := v.refs(dir)
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.EdgeID
	}
	return out
}

// VertexIDs returns the vertex on the other end of every edge in dir.
func (v *Vertex) VertexIDs(dir Direction) []string {
	refs := v.refs(dir)
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.VertexID
	}
	return out
}

func (v *Vertex) EdgeCount(dir Direction) int {
	switch dir {
	case DirectionOut:
		return len(v.outEdges)
	case DirectionIn:
		return len(v.inEdges)
	}
	return len(v.outEdges) + len(v.inEdges)
}

func (v *Vertex) addOutEdge(e *Edge) {
	v.outEdges[e.id] = EdgeInfo{Label: e.label, VertexID: e.inVertexID}
}

func (v *Vertex) addInEdge(e *Edge) {
	v.inEdges[e.id] = EdgeInfo{Label: e.label, VertexID: e.outVertexID}
}

func (v *Vertex) removeEdge(edgeID string) {
	delete(v.outEdges, edgeID)
	delete(v.inEdges, edgeID)
}

// Edge is a directed, labeled graph edge.
type Edge struct {
	element
	outVertexID string
	inVertexID  string
	label       string
}

func newEdge(id, outVertexID, inVertexID, label string, vis visibility.Visibility, props []*Property, hints FetchHints, auths visibility.Authorizations) *Edge {
	return &Edge{
		element:     newElement(KindEdge, id, vis, props, hints, auths),
		outVertexID: outVertexID,
		inVertexID:  inVertexID,
		label:       label,
	}
}

func (e *Edge) Label() string       { return e.label }
func (e *Edge) OutVertexID() string { return e.outVertexID }
func (e *Edge) InVertexID() string  { return e.inVertexID }

// VertexID returns the endpoint in dir. DirectionBoth has no single
// endpoint and yields "".
func (e *Edge) VertexID(dir Direction) string {
	switch dir {
	case DirectionOut:
		return e.outVertexID
	case DirectionIn:
		return e.inVertexID
	}
	return ""
}

// OtherVertexID returns the endpoint opposite vertexID.
func (e *Edge) OtherVertexID(vertexID string) (string, error) {
	switch vertexID {
	case e.inVertexID:
		return e.outVertexID, nil
	case e.outVertexID:
		return e.inVertexID, nil
	}
	return "", sgerr.New(sgerr.CodeGraphEdgeVertexInvalidInput, "vertex is not an endpoint of the edge",
		sgerr.FieldElementID(e.id), sgerr.Field("vertex_id", vertexID))
}
