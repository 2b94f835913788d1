// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/sigil-dev/securegraph/internal/graph"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Record is one line of a newline-delimited JSON load file.
//
//	{"type":"vertex","id":"v1","visibility":"a","properties":[{"name":"name","value":"alice"}]}
//	{"type":"edge","id":"e1","out":"v1","in":"v2","label":"knows"}
type Record struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	Visibility string           `json:"visibility"`
	Out        string           `json:"out,omitempty"`
	In         string           `json:"in,omitempty"`
	Label      string           `json:"label,omitempty"`
	Properties []PropertyRecord `json:"properties,omitempty"`
}

type PropertyRecord struct {
	Key        string         `json:"key"`
	Name       string         `json:"name"`
	Value      any            `json:"value"`
	Visibility string         `json:"visibility"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

const (
	RecordVertex = "vertex"
	RecordEdge   = "edge"
)

// maxLineSize bounds a single record line.
const maxLineSize = 16 << 20

// Load reads records from r and saves each one. Blank lines are skipped.
// It stops at the first invalid record; records before it stay buffered
// and are written by the next Flush or Close.
func (l *Loader) Load(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return sgerr.With(err, sgerr.Field("line", line))
		}
		if err := l.Save(ctx, rec); err != nil {
			return sgerr.With(err, sgerr.Field("line", line))
		}
	}
	if err := sc.Err(); err != nil {
		return sgerr.Wrap(err, sgerr.CodeIngestLoadFailure, "reading records", sgerr.Field("line", line))
	}
	return nil
}

func decodeRecord(raw []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return Record{}, sgerr.New(sgerr.CodeIngestRecordInvalidFormat, "decoding record: "+err.Error())
	}
	return rec, nil
}

// Save writes one record. A record without an id gets a generated one.
func (l *Loader) Save(ctx context.Context, rec Record) error {
	vis := visibility.Visibility(rec.Visibility)
	if rec.ID == "" {
		rec.ID = graph.UUIDGenerator{}.NextID()
	}
	switch rec.Type {
	case RecordVertex:
		b := l.PrepareVertex(rec.ID, vis)
		for _, p := range rec.Properties {
			b.AddPropertyValueWithMetadata(p.Key, p.Name, normalize(p.Value), normalizeMap(p.Metadata), visibility.Visibility(p.Visibility))
		}
		_, err := b.Save(ctx, visibility.Authorizations{})
		return err
	case RecordEdge:
		b := l.PrepareEdge(rec.ID, rec.Out, rec.In, rec.Label, vis)
		for _, p := range rec.Properties {
			b.AddPropertyValueWithMetadata(p.Key, p.Name, normalize(p.Value), normalizeMap(p.Metadata), visibility.Visibility(p.Visibility))
		}
		_, err := b.Save(ctx, visibility.Authorizations{})
		return err
	}
	return sgerr.New(sgerr.CodeIngestRecordInvalidFormat, "unknown record type",
		sgerr.Field("type", rec.Type), sgerr.FieldElementID(rec.ID))
}

// normalize turns json.Number into int64 when the number is integral and
// float64 otherwise, recursively.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return normalizeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// IsRecordError reports whether err came from a malformed record rather
// than from storage.
func IsRecordError(err error) bool {
	return sgerr.HasCode(err, sgerr.CodeIngestRecordInvalidFormat) || sgerr.IsInvalidInput(err)
}

