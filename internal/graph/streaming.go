// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// StreamingValue is a property value too large to keep inline. Saving it
// stores the payload in the data table or, above the configured size, in
// the blob store; the property cell keeps a reference. Values read back
// from storage re-open the payload on every Open.
type StreamingValue struct {
	ValueType   string
	SearchIndex bool

	length int64

	mu       sync.Mutex
	reader   io.Reader
	consumed bool
	open     func(ctx context.Context) (io.ReadCloser, error)
}

// NewStreamingValue wraps a one-shot reader. It can be opened once, by the
// save that stores it.
func NewStreamingValue(r io.Reader, valueType string) *StreamingValue {
	return &StreamingValue{ValueType: valueType, reader: r, length: -1}
}

func NewStreamingValueBytes(b []byte, valueType string) *StreamingValue {
	return newStoredStream(valueType, false, int64(len(b)), func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	})
}

func newStoredStream(valueType string, searchIndex bool, length int64, open func(ctx context.Context) (io.ReadCloser, error)) *StreamingValue {
	return &StreamingValue{ValueType: valueType, SearchIndex: searchIndex, length: length, open: open}
}

// WithSearchIndex marks the value for full-text indexing.
func (s *StreamingValue) WithSearchIndex(index bool) *StreamingValue {
	s.SearchIndex = index
	return s
}

// Length returns the payload size, or -1 when it is not known yet.
func (s *StreamingValue) Length() int64 {
	return s.length
}

func (s *StreamingValue) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.open != nil {
		return s.open(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed || s.reader == nil {
		return nil, sgerr.New(sgerr.CodeGraphStreamingReadFailure, "streaming value already consumed")
	}
	s.consumed = true
	if rc, ok := s.reader.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(s.reader), nil
}

func (s *StreamingValue) ReadAll(ctx context.Context) ([]byte, error) {
	rc, err := s.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeGraphStreamingReadFailure, "reading streaming value")
	}
	return b, nil
}

func (s *StreamingValue) String() string {
	return fmt.Sprintf("StreamingValue{type=%s, length=%d}", s.ValueType, s.length)
}
