// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"encoding/binary"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// EdgeInfo is stored on a vertex row for every adjacent edge: the edge
// label and the vertex on the other end.
type EdgeInfo struct {
	Label    string
	VertexID string
}

// EdgeRef pairs an edge id with its EdgeInfo.
type EdgeRef struct {
	EdgeID string
	EdgeInfo
}

// Bytes encodes e as a 4-byte big-endian label length, the label and the
// vertex id.
func (e EdgeInfo) Bytes() []byte {
	b := make([]byte, 4, 4+len(e.Label)+len(e.VertexID))
	binary.BigEndian.PutUint32(b, uint32(len(e.Label)))
	b = append(b, e.Label...)
	return append(b, e.VertexID...)
}

func ParseEdgeInfo(b []byte) (EdgeInfo, error) {
	if len(b) < 4 {
		return EdgeInfo{}, sgerr.New(sgerr.CodeGraphEdgeInfoDecodeInvalidFormat, "edge info shorter than its length prefix")
	}
	n := binary.BigEndian.Uint32(b)
	if uint64(n) > uint64(len(b)-4) {
		return EdgeInfo{}, sgerr.New(sgerr.CodeGraphEdgeInfoDecodeInvalidFormat, "edge info label overruns value",
			sgerr.Field("label_length", n))
	}
	return EdgeInfo{
		Label:    string(b[4 : 4+n]),
		VertexID: string(b[4+n:]),
	}, nil
}
