// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/kv"
	"github.com/sigil-dev/securegraph/internal/kv/memory"
	"github.com/sigil-dev/securegraph/internal/server"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec registers every route against an empty in-memory graph and
// returns the OpenAPI document huma derives from the Go types.
func generateSpec() ([]byte, error) {
	ctx := context.Background()
	client := kv.NewClient(memory.New())
	defer func() { _ = client.Close() }()

	g, err := graph.Open(ctx, client, graph.Options{})
	if err != nil {
		return nil, sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "opening graph")
	}
	defer func() { _ = g.Close(ctx) }()

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sgerr.Errorf(sgerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	defer srv.Close()
	srv.RegisterGraph(g)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}
