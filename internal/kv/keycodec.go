// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package kv

import (
	"bytes"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// Encoded keys join the four key components with a 0x00 terminator after
// each one. Inside a component 0x00 becomes 0x01 0x01 and 0x01 becomes
// 0x01 0x02, which keeps byte-wise comparison of encoded keys identical to
// component-wise comparison of the originals.
const (
	terminator = 0x00
	escape     = 0x01
)

// EncodeKey returns the ordered byte form of (row, family, qualifier,
// visibility). The timestamp is not part of it.
func EncodeKey(row, family, qualifier string, vis visibility.Visibility) []byte {
	buf := make([]byte, 0, len(row)+len(family)+len(qualifier)+len(vis)+4)
	for _, part := range [...]string{row, family, qualifier, string(vis)} {
		buf = appendComponent(buf, part)
		buf = append(buf, terminator)
	}
	return buf
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (Key, error) {
	var parts [4]string
	rest := b
	for i := range parts {
		part, n, err := readComponent(rest)
		if err != nil {
			return Key{}, err
		}
		parts[i] = part
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return Key{}, sgerr.New(sgerr.CodeKVKeyDecodeInvalidFormat, "kv: trailing bytes after key")
	}
	return Key{
		Row:        parts[0],
		Family:     parts[1],
		Qualifier:  parts[2],
		Visibility: visibility.Visibility(parts[3]),
	}, nil
}

// rowBound is the encoded lower bound of every key whose row is >= row. It
// is also the exclusive upper bound of every key whose row is < row.
func rowBound(row string) []byte {
	return appendComponent(nil, row)
}

func appendComponent(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case terminator:
			buf = append(buf, escape, 0x01)
		case escape:
			buf = append(buf, escape, 0x02)
		default:
			buf = append(buf, c)
		}
	}
	return buf
}

func readComponent(b []byte) (string, int, error) {
	end := bytes.IndexByte(b, terminator)
	if end < 0 {
		return "", 0, sgerr.New(sgerr.CodeKVKeyDecodeInvalidFormat, "kv: missing key terminator")
	}
	raw := b[:end]
	if bytes.IndexByte(raw, escape) < 0 {
		return string(raw), end + 1, nil
	}
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != escape {
			out = append(out, raw[i])
			continue
		}
		if i+1 >= len(raw) {
			return "", 0, sgerr.New(sgerr.CodeKVKeyDecodeInvalidFormat, "kv: dangling escape in key")
		}
		i++
		switch raw[i] {
		case 0x01:
			out = append(out, terminator)
		case 0x02:
			out = append(out, escape)
		default:
			return "", 0, sgerr.New(sgerr.CodeKVKeyDecodeInvalidFormat, "kv: invalid escape in key")
		}
	}
	return string(out), end + 1, nil
}
