// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package serializer encodes property values and metadata maps.
package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// Msgpack encodes values with MessagePack. Decoding widens integers to
// int64 or uint64 and floats to float64, returns maps as map[string]any and
// keeps time.Time.
type Msgpack struct{}

func New() Msgpack {
	return Msgpack{}
}

func (Msgpack) Serialize(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, sgerr.Wrapf(err, sgerr.CodeSerializerEncodeFailure, "serializing %T", v)
	}
	return b, nil
}

func (Msgpack) Deserialize(b []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeSerializerDecodeFailure, "deserializing value")
	}
	return v, nil
}
