// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/securegraph/internal/graph"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// RegisterGraph sets the graph served by the API and registers the REST
// routes.
func (s *Server) RegisterGraph(g *graph.Graph) {
	s.graph = g
	s.registerRoutes()
}

type kindRoute struct {
	kind   graph.ElementKind
	plural string
}

var kindRoutes = []kindRoute{
	{graph.KindVertex, "vertices"},
	{graph.KindEdge, "edges"},
}

func (s *Server) registerRoutes() {
	// Vertex endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-vertex",
		Method:        http.MethodPost,
		Path:          "/api/v1/vertices",
		Summary:       "Create a vertex",
		Tags:          []string{"vertices"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateVertex)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-vertex-edges",
		Method:      http.MethodGet,
		Path:        "/api/v1/vertices/{id}/edges",
		Summary:     "List the edges of a vertex",
		Tags:        []string{"vertices"},
	}, s.handleVertexEdges)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-adjacent-vertices",
		Method:      http.MethodGet,
		Path:        "/api/v1/vertices/{id}/adjacent",
		Summary:     "List the vertices adjacent to a vertex",
		Tags:        []string{"vertices"},
	}, s.handleAdjacentVertices)

	// Edge endpoints
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-edge",
		Method:        http.MethodPost,
		Path:          "/api/v1/edges",
		Summary:       "Create an edge between two vertices",
		Tags:          []string{"edges"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateEdge)

	// Endpoints shared by both element kinds
	for _, k := range kindRoutes {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-" + string(k.kind),
			Method:      http.MethodGet,
			Path:        "/api/v1/" + k.plural + "/{id}",
			Summary:     "Get a " + string(k.kind),
			Tags:        []string{k.plural},
		}, s.handleGetElement(k.kind))

		huma.Register(s.api, huma.Operation{
			OperationID:   "delete-" + string(k.kind),
			Method:        http.MethodDelete,
			Path:          "/api/v1/" + k.plural + "/{id}",
			Summary:       "Delete a " + string(k.kind),
			Tags:          []string{k.plural},
			DefaultStatus: http.StatusNoContent,
		}, s.handleDeleteElement(k.kind))

		huma.Register(s.api, huma.Operation{
			OperationID: "set-" + string(k.kind) + "-property",
			Method:      http.MethodPut,
			Path:        "/api/v1/" + k.plural + "/{id}/properties",
			Summary:     "Set a property value on a " + string(k.kind),
			Tags:        []string{k.plural},
		}, s.handleSetProperty(k.kind))

		huma.Register(s.api, huma.Operation{
			OperationID: "delete-" + string(k.kind) + "-property",
			Method:      http.MethodDelete,
			Path:        "/api/v1/" + k.plural + "/{id}/properties",
			Summary:     "Remove property values from a " + string(k.kind),
			Tags:        []string{k.plural},
		}, s.handleRemoveProperty(k.kind))

		huma.Register(s.api, huma.Operation{
			OperationID: "alter-" + string(k.kind) + "-visibility",
			Method:      http.MethodPut,
			Path:        "/api/v1/" + k.plural + "/{id}/visibility",
			Summary:     "Change the visibility of a " + string(k.kind) + " or its properties",
			Tags:        []string{k.plural},
		}, s.handleAlterVisibility(k.kind))
	}

	// Search and traversal
	huma.Register(s.api, huma.Operation{
		OperationID: "query",
		Method:      http.MethodPost,
		Path:        "/api/v1/query",
		Summary:     "Query vertices or edges",
		Tags:        []string{"search"},
	}, s.handleQuery)

	huma.Register(s.api, huma.Operation{
		OperationID: "find-paths",
		Method:      http.MethodGet,
		Path:        "/api/v1/paths",
		Summary:     "Find paths between two vertices",
		Tags:        []string{"search"},
	}, s.handleFindPaths)

	huma.Register(s.api, huma.Operation{
		OperationID: "related-edges",
		Method:      http.MethodPost,
		Path:        "/api/v1/related-edges",
		Summary:     "Find edges connecting a set of vertices",
		Tags:        []string{"search"},
	}, s.handleRelatedEdges)
}

// --- Request/Response types for huma ---

// PropertyBody is one property value.
type PropertyBody struct {
	Key        string         `json:"key,omitempty" doc:"Property key; the default key when empty"`
	Name       string         `json:"name" doc:"Property name"`
	Value      any            `json:"value" doc:"Property value"`
	Visibility string         `json:"visibility,omitempty" doc:"Visibility expression"`
	Metadata   map[string]any `json:"metadata,omitempty" doc:"Property metadata"`
}

// StreamingValueBody describes a streamed value without its payload.
type StreamingValueBody struct {
	ValueType string `json:"value_type"`
	Length    int64  `json:"length"`
}

// ElementBody is a vertex or an edge as seen by the caller.
type ElementBody struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind" enum:"vertex,edge"`
	Visibility  string         `json:"visibility"`
	Label       string         `json:"label,omitempty"`
	OutVertexID string         `json:"out_vertex_id,omitempty"`
	InVertexID  string         `json:"in_vertex_id,omitempty"`
	Properties  []PropertyBody `json:"properties"`
	OutEdgeIDs  []string       `json:"out_edge_ids,omitempty"`
	InEdgeIDs   []string       `json:"in_edge_ids,omitempty"`
}

type elementOutput struct {
	Body ElementBody
}

type elementsOutput struct {
	Body struct {
		Elements []ElementBody `json:"elements"`
	}
}

type createVertexInput struct {
	Body struct {
		ID         string         `json:"id,omitempty" doc:"Vertex id; generated when empty"`
		Visibility string         `json:"visibility,omitempty"`
		Properties []PropertyBody `json:"properties,omitempty"`
	}
}

type createEdgeInput struct {
	Body struct {
		ID          string         `json:"id,omitempty" doc:"Edge id; generated when empty"`
		OutVertexID string         `json:"out_vertex_id" minLength:"1"`
		InVertexID  string         `json:"in_vertex_id" minLength:"1"`
		Label       string         `json:"label" minLength:"1"`
		Visibility  string         `json:"visibility,omitempty"`
		Properties  []PropertyBody `json:"properties,omitempty"`
	}
}

type getElementInput struct {
	ID    string `path:"id"`
	Hints string `query:"hints" default:"all" enum:"none,properties,edge_refs,all" doc:"Parts of the element to read"`
}

type elementIDInput struct {
	ID string `path:"id"`
}

type traverseInput struct {
	ID        string `path:"id"`
	Direction string `query:"direction" default:"both" enum:"out,in,both"`
}

type setPropertyInput struct {
	ID   string `path:"id"`
	Body PropertyBody
}

type removePropertyInput struct {
	ID   string `path:"id"`
	Name string `query:"name" required:"true" doc:"Property name"`
	Key  string `query:"key" doc:"Property key; every value of name when empty"`
}

type propertyVisibilityChange struct {
	Key        string  `json:"key,omitempty"`
	Name       string  `json:"name"`
	Current    *string `json:"current_visibility,omitempty" doc:"Selects the value with this visibility"`
	Visibility string  `json:"visibility"`
}

type alterVisibilityInput struct {
	ID   string `path:"id"`
	Body struct {
		Visibility *string                    `json:"visibility,omitempty" doc:"New element visibility"`
		Properties []propertyVisibilityChange `json:"properties,omitempty"`
	}
}

type hasBody struct {
	Name  string `json:"name"`
	Op    string `json:"op,omitempty" default:"=" enum:"=,!=,>,>=,<,<=,in"`
	Value any    `json:"value"`
}

type queryInput struct {
	Body struct {
		Query string    `json:"q,omitempty" doc:"Free text; empty or * matches everything"`
		Kind  string    `json:"kind,omitempty" default:"vertex" enum:"vertex,edge"`
		Has   []hasBody `json:"has,omitempty"`
		Skip  int       `json:"skip,omitempty" minimum:"0"`
		Limit int       `json:"limit,omitempty" minimum:"0" doc:"Maximum results; zero means no limit"`
	}
}

type findPathsInput struct {
	From      string `query:"from" required:"true"`
	To        string `query:"to" required:"true"`
	MaxHops   int    `query:"max_hops" default:"3" minimum:"0"`
	Direction string `query:"direction" default:"both" enum:"out,in,both"`
}

type findPathsOutput struct {
	Body struct {
		Paths [][]string `json:"paths"`
	}
}

type relatedEdgesInput struct {
	Body struct {
		VertexIDs []string `json:"vertex_ids"`
	}
}

type relatedEdgesOutput struct {
	Body struct {
		EdgeIDs []string `json:"edge_ids"`
	}
}

// --- Handlers ---

func (s *Server) handleCreateVertex(ctx context.Context, input *createVertexInput) (*elementOutput, error) {
	auths := authorizationsFrom(ctx)
	b := s.graph.PrepareVertex(input.Body.ID, visibility.Visibility(input.Body.Visibility))
	applyProperties(b, input.Body.Properties)
	v, err := b.Save(ctx, auths)
	if err != nil {
		return nil, s.apiError(err, "create vertex")
	}
	return s.elementResponse(v)
}

func (s *Server) handleCreateEdge(ctx context.Context, input *createEdgeInput) (*elementOutput, error) {
	auths := authorizationsFrom(ctx)
	out, err := s.requireVertex(ctx, input.Body.OutVertexID, graph.FetchNone, auths)
	if err != nil {
		return nil, err
	}
	in, err := s.requireVertex(ctx, input.Body.InVertexID, graph.FetchNone, auths)
	if err != nil {
		return nil, err
	}
	b := s.graph.PrepareEdge(input.Body.ID, out, in, input.Body.Label, visibility.Visibility(input.Body.Visibility))
	applyProperties(b, input.Body.Properties)
	e, err := b.Save(ctx, auths)
	if err != nil {
		return nil, s.apiError(err, "create edge")
	}
	return s.elementResponse(e)
}

func (s *Server) handleGetElement(kind graph.ElementKind) func(context.Context, *getElementInput) (*elementOutput, error) {
	return func(ctx context.Context, input *getElementInput) (*elementOutput, error) {
		hints, err := parseFetchHints(input.Hints)
		if err != nil {
			return nil, s.apiError(err, "get "+string(kind))
		}
		el, err := s.requireElement(ctx, kind, input.ID, hints, authorizationsFrom(ctx))
		if err != nil {
			return nil, err
		}
		return s.elementResponse(el)
	}
}

func (s *Server) handleDeleteElement(kind graph.ElementKind) func(context.Context, *elementIDInput) (*struct{}, error) {
	return func(ctx context.Context, input *elementIDInput) (*struct{}, error) {
		auths := authorizationsFrom(ctx)
		el, err := s.requireElement(ctx, kind, input.ID, graph.FetchAll, auths)
		if err != nil {
			return nil, err
		}
		switch el := el.(type) {
		case *graph.Vertex:
			err = s.graph.RemoveVertex(ctx, el, auths)
		case *graph.Edge:
			err = s.graph.RemoveEdge(ctx, el, auths)
		}
		if err != nil {
			return nil, s.apiError(err, "delete "+string(kind))
		}
		return nil, nil
	}
}

func (s *Server) handleVertexEdges(ctx context.Context, input *traverseInput) (*elementsOutput, error) {
	auths := authorizationsFrom(ctx)
	dir, err := graph.ParseDirection(input.Direction)
	if err != nil {
		return nil, s.apiError(err, "list vertex edges")
	}
	v, err := s.requireVertex(ctx, input.ID, graph.FetchEdgeRefs, auths)
	if err != nil {
		return nil, err
	}
	it, err := s.graph.VertexEdges(ctx, v, dir, graph.FetchAll, auths)
	if err != nil {
		return nil, s.apiError(err, "list vertex edges")
	}
	return elementsResponse(s, it)
}

func (s *Server) handleAdjacentVertices(ctx context.Context, input *traverseInput) (*elementsOutput, error) {
	auths := authorizationsFrom(ctx)
	dir, err := graph.ParseDirection(input.Direction)
	if err != nil {
		return nil, s.apiError(err, "list adjacent vertices")
	}
	v, err := s.requireVertex(ctx, input.ID, graph.FetchEdgeRefs, auths)
	if err != nil {
		return nil, err
	}
	it, err := s.graph.AdjacentVertices(ctx, v, dir, graph.FetchAll, auths)
	if err != nil {
		return nil, s.apiError(err, "list adjacent vertices")
	}
	return elementsResponse(s, it)
}

func (s *Server) handleSetProperty(kind graph.ElementKind) func(context.Context, *setPropertyInput) (*elementOutput, error) {
	return func(ctx context.Context, input *setPropertyInput) (*elementOutput, error) {
		auths := authorizationsFrom(ctx)
		el, err := s.requireElement(ctx, kind, input.ID, graph.FetchAll, auths)
		if err != nil {
			return nil, err
		}
		p := input.Body
		m := graph.PrepareMutation(s.graph, el)
		if p.Key == "" {
			m.SetPropertyWithMetadata(p.Name, p.Value, p.Metadata, visibility.Visibility(p.Visibility))
		} else {
			m.AddPropertyValueWithMetadata(p.Key, p.Name, p.Value, p.Metadata, visibility.Visibility(p.Visibility))
		}
		saved, err := m.Save(ctx, auths)
		if err != nil {
			return nil, s.apiError(err, "set property")
		}
		return s.elementResponse(saved)
	}
}

func (s *Server) handleRemoveProperty(kind graph.ElementKind) func(context.Context, *removePropertyInput) (*elementOutput, error) {
	return func(ctx context.Context, input *removePropertyInput) (*elementOutput, error) {
		auths := authorizationsFrom(ctx)
		el, err := s.requireElement(ctx, kind, input.ID, graph.FetchAll, auths)
		if err != nil {
			return nil, err
		}
		if input.Key == "" {
			err = s.graph.RemovePropertyByName(ctx, el, input.Name, auths)
		} else {
			err = s.graph.RemoveProperty(ctx, el, input.Key, input.Name, auths)
		}
		if err != nil {
			return nil, s.apiError(err, "remove property")
		}
		return s.elementResponse(el)
	}
}

func (s *Server) handleAlterVisibility(kind graph.ElementKind) func(context.Context, *alterVisibilityInput) (*elementOutput, error) {
	return func(ctx context.Context, input *alterVisibilityInput) (*elementOutput, error) {
		if input.Body.Visibility == nil && len(input.Body.Properties) == 0 {
			return nil, huma.Error400BadRequest("visibility or properties is required")
		}
		auths := authorizationsFrom(ctx)
		el, err := s.requireElement(ctx, kind, input.ID, graph.FetchAll, auths)
		if err != nil {
			return nil, err
		}
		m := graph.PrepareMutation(s.graph, el)
		for _, c := range input.Body.Properties {
			if c.Current != nil {
				m.AlterPropertyVisibilityOf(c.Key, c.Name, visibility.Visibility(*c.Current), visibility.Visibility(c.Visibility))
			} else {
				m.AlterPropertyVisibility(c.Key, c.Name, visibility.Visibility(c.Visibility))
			}
		}
		if input.Body.Visibility != nil {
			m.AlterElementVisibility(visibility.Visibility(*input.Body.Visibility))
		}
		saved, err := m.Save(ctx, auths)
		if err != nil {
			return nil, s.apiError(err, "alter visibility")
		}
		return s.elementResponse(saved)
	}
}

func (s *Server) handleQuery(ctx context.Context, input *queryInput) (*elementsOutput, error) {
	q := s.graph.Query(input.Body.Query, authorizationsFrom(ctx))
	for _, h := range input.Body.Has {
		op, err := graph.ParseCompareOp(h.Op)
		if err != nil {
			return nil, s.apiError(err, "query")
		}
		q.HasCompare(h.Name, op, h.Value)
	}
	if input.Body.Skip > 0 {
		q.Skip(input.Body.Skip)
	}
	if input.Body.Limit > 0 {
		q.Limit(input.Body.Limit)
	}

	if input.Body.Kind == string(graph.KindEdge) {
		it, err := q.Edges(ctx)
		if err != nil {
			return nil, s.apiError(err, "query")
		}
		return elementsResponse(s, it)
	}
	it, err := q.Vertices(ctx)
	if err != nil {
		return nil, s.apiError(err, "query")
	}
	return elementsResponse(s, it)
}

func (s *Server) handleFindPaths(ctx context.Context, input *findPathsInput) (*findPathsOutput, error) {
	dir, err := graph.ParseDirection(input.Direction)
	if err != nil {
		return nil, s.apiError(err, "find paths")
	}
	paths, err := s.graph.FindPaths(ctx, input.From, input.To, input.MaxHops, authorizationsFrom(ctx), graph.WithDirection(dir))
	if err != nil {
		return nil, s.apiError(err, "find paths")
	}
	out := &findPathsOutput{}
	out.Body.Paths = make([][]string, 0, len(paths))
	for _, p := range paths {
		out.Body.Paths = append(out.Body.Paths, []string(p))
	}
	return out, nil
}

func (s *Server) handleRelatedEdges(ctx context.Context, input *relatedEdgesInput) (*relatedEdgesOutput, error) {
	ids, err := s.graph.FindRelatedEdges(ctx, input.Body.VertexIDs, authorizationsFrom(ctx))
	if err != nil {
		return nil, s.apiError(err, "find related edges")
	}
	out := &relatedEdgesOutput{}
	out.Body.EdgeIDs = ids
	if out.Body.EdgeIDs == nil {
		out.Body.EdgeIDs = []string{}
	}
	return out, nil
}

// --- Helpers ---

func authorizationsFrom(ctx context.Context) visibility.Authorizations {
	if user := UserFromContext(ctx); user != nil {
		return user.Authorizations
	}
	return visibility.NewAuthorizations()
}

func applyProperties[T graph.Element](b *graph.ElementBuilder[T], props []PropertyBody) {
	for _, p := range props {
		if p.Key == "" {
			b.SetPropertyWithMetadata(p.Name, p.Value, p.Metadata, visibility.Visibility(p.Visibility))
			continue
		}
		b.AddPropertyValueWithMetadata(p.Key, p.Name, p.Value, p.Metadata, visibility.Visibility(p.Visibility))
	}
}

// requireElement reads an element and reports a 404 when it is missing or
// hidden from auths. The two cases are indistinguishable.
func (s *Server) requireElement(ctx context.Context, kind graph.ElementKind, id string, hints graph.FetchHints, auths visibility.Authorizations) (graph.Element, error) {
	if kind == graph.KindVertex {
		v, err := s.requireVertex(ctx, id, hints, auths)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	e, err := s.graph.GetEdge(ctx, id, hints, auths)
	if err != nil {
		return nil, s.apiError(err, "get edge")
	}
	if e == nil {
		return nil, huma.Error404NotFound("edge " + id + " not found")
	}
	return e, nil
}

func (s *Server) requireVertex(ctx context.Context, id string, hints graph.FetchHints, auths visibility.Authorizations) (*graph.Vertex, error) {
	v, err := s.graph.GetVertex(ctx, id, hints, auths)
	if err != nil {
		return nil, s.apiError(err, "get vertex")
	}
	if v == nil {
		return nil, huma.Error404NotFound("vertex " + id + " not found")
	}
	return v, nil
}

func (s *Server) elementResponse(el graph.Element) (*elementOutput, error) {
	body, err := toElementBody(el)
	if err != nil {
		return nil, s.apiError(err, "encode element")
	}
	return &elementOutput{Body: body}, nil
}

func elementsResponse[T graph.Element](s *Server, it *graph.Iterator[T]) (*elementsOutput, error) {
	defer func() { _ = it.Close() }()
	out := &elementsOutput{}
	out.Body.Elements = []ElementBody{}
	for it.Next() {
		body, err := toElementBody(it.Value())
		if err != nil {
			return nil, s.apiError(err, "encode element")
		}
		out.Body.Elements = append(out.Body.Elements, body)
	}
	if err := it.Err(); err != nil {
		return nil, s.apiError(err, "read elements")
	}
	return out, nil
}

func toElementBody(el graph.Element) (ElementBody, error) {
	body := ElementBody{
		ID:         el.ID(),
		Kind:       string(el.Kind()),
		Visibility: el.Visibility().String(),
		Properties: []PropertyBody{},
	}
	switch el := el.(type) {
	case *graph.Vertex:
		body.OutEdgeIDs = el.EdgeIDs(graph.DirectionOut)
		body.InEdgeIDs = el.EdgeIDs(graph.DirectionIn)
	case *graph.Edge:
		body.Label = el.Label()
		body.OutVertexID = el.OutVertexID()
		body.InVertexID = el.InVertexID()
	}
	for _, p := range el.Properties() {
		v, err := p.Value()
		if err != nil {
			return ElementBody{}, err
		}
		if sv, ok := v.(*graph.StreamingValue); ok {
			v = StreamingValueBody{ValueType: sv.ValueType, Length: sv.Length()}
		}
		md, err := p.Metadata()
		if err != nil {
			return ElementBody{}, err
		}
		if len(md) == 0 {
			md = nil
		}
		body.Properties = append(body.Properties, PropertyBody{
			Key:        p.Key(),
			Name:       p.Name(),
			Value:      v,
			Visibility: p.Visibility().String(),
			Metadata:   md,
		})
	}
	return body, nil
}

// apiError maps err onto an HTTP status. Server-side failures are logged
// and reported without detail.
func (s *Server) apiError(err error, op string) error {
	status := sgerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("operation", op),
			slog.String("code", string(sgerr.CodeOf(err))),
			slog.Any("error", err),
		)
		return huma.NewError(status, op+" failed")
	}
	return huma.NewError(status, err.Error())
}

func parseFetchHints(s string) (graph.FetchHints, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return graph.FetchAll, nil
	case "none":
		return graph.FetchNone, nil
	case "properties":
		return graph.FetchProperties | graph.FetchPropertyMetadata, nil
	case "edge_refs":
		return graph.FetchEdgeRefs, nil
	}
	return 0, sgerr.New(sgerr.CodeServerRequestInvalid, "unknown fetch hints", sgerr.Field("hints", s))
}
