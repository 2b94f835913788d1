// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sigil-dev/securegraph/internal/kv"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Property value cells start with a tag byte.
const (
	valueTagInline byte = 0x00
	valueTagTable  byte = 0x01
	valueTagBlob   byte = 0x02
)

// streamRef is stored in place of a streamed value.
type streamRef struct {
	Row         string `msgpack:"row,omitempty"`
	Blob        string `msgpack:"blob,omitempty"`
	Visibility  string `msgpack:"vis"`
	ValueType   string `msgpack:"type"`
	SearchIndex bool   `msgpack:"search"`
	Length      int64  `msgpack:"len"`
}

type valueDecoder interface {
	decodeValue(raw []byte) (any, error)
	decodeMetadata(raw []byte) (map[string]any, error)
}

func encodeInlineValue(ser ValueSerializer, v any) ([]byte, error) {
	b, err := ser.Serialize(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{valueTagInline}, b...), nil
}

func encodeStreamRef(tag byte, ref streamRef) ([]byte, error) {
	b, err := msgpack.Marshal(ref)
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeGraphValueEncodeFailure, "encoding streaming reference")
	}
	return append([]byte{tag}, b...), nil
}

func blobKey(elementRowKey, name, key string, vis visibility.Visibility) string {
	sum := sha256.Sum256([]byte(dataRowKey(elementRowKey, name, key) + ValueSeparator + string(vis)))
	h := hex.EncodeToString(sum[:])
	return h[:2] + "/" + h[2:]
}

// readDecoder decodes values for elements read with one set of
// authorizations. Streamed payloads are fetched with the same
// authorizations.
type readDecoder struct {
	g     *Graph
	auths visibility.Authorizations
}

func (d *readDecoder) decodeValue(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, sgerr.New(sgerr.CodeGraphValueDecodeInvalidFormat, "empty property value")
	}
	switch raw[0] {
	case valueTagInline:
		v, err := d.g.serializer.Deserialize(raw[1:])
		if err != nil {
			return nil, sgerr.New(sgerr.CodeGraphValueDecodeInvalidFormat, "decoding property value: "+err.Error())
		}
		return v, nil
	case valueTagTable, valueTagBlob:
		var ref streamRef
		if err := msgpack.Unmarshal(raw[1:], &ref); err != nil {
			return nil, sgerr.New(sgerr.CodeGraphValueDecodeInvalidFormat, "decoding streaming reference: "+err.Error())
		}
		if raw[0] == valueTagTable {
			return newStoredStream(ref.ValueType, ref.SearchIndex, ref.Length, func(ctx context.Context) (io.ReadCloser, error) {
				return d.g.readDataRow(ctx, ref.Row, visibility.Visibility(ref.Visibility), d.auths)
			}), nil
		}
		return newStoredStream(ref.ValueType, ref.SearchIndex, ref.Length, func(ctx context.Context) (io.ReadCloser, error) {
			if d.g.blobs == nil {
				return nil, sgerr.New(sgerr.CodeGraphStreamingReadFailure, "no blob store configured")
			}
			return d.g.blobs.Open(ctx, ref.Blob)
		}), nil
	default:
		return nil, sgerr.New(sgerr.CodeGraphValueDecodeInvalidFormat, "unknown property value tag",
			sgerr.Field("tag", raw[0]))
	}
}

func (d *readDecoder) decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return make(map[string]any), nil
	}
	v, err := d.g.serializer.Deserialize(raw)
	if err != nil {
		return nil, sgerr.New(sgerr.CodeGraphValueDecodeInvalidFormat, "decoding property metadata: "+err.Error())
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, sgerr.Errorf(sgerr.CodeGraphValueDecodeInvalidFormat, "property metadata decoded to %T", v)
	}
	return m, nil
}

// readDataRow opens the data table cell holding a streamed value.
func (g *Graph) readDataRow(ctx context.Context, row string, vis visibility.Visibility, auths visibility.Authorizations) (io.ReadCloser, error) {
	s := g.client.NewScanner(g.tables.data, auths)
	s.SetRange(kv.ExactRow(row))
	s.FetchColumnFamily(CFData)
	it, err := s.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	for it.Next() {
		for _, c := range it.Row() {
			if c.Key.Family == CFData && c.Key.Visibility == vis {
				return io.NopCloser(bytes.NewReader(c.Value)), nil
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, sgerr.New(sgerr.CodeGraphStreamingReadFailure, "streaming value not found",
		sgerr.FieldRow(row), sgerr.FieldVisibility(string(vis)))
}
