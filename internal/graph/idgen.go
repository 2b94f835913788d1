// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package graph

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator supplies ids for elements saved without one.
type IDGenerator interface {
	NextID() string
}

// UUIDGenerator returns random UUIDs without dashes.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
