// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/securegraph/internal/ingest"
	"github.com/sigil-dev/securegraph/internal/serializer"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

func (c *cli) newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>",
		Short: "Bulk load vertices and edges from newline-delimited JSON",
		Long: `Load newline-delimited JSON records straight into the graph tables.
Use "-" to read from standard input. Loading stops at the first invalid
record; records before it are kept. Loaded elements bypass the search
index.`,
		Args: cobra.ExactArgs(1),
		RunE: c.runIngest,
	}
}

func (c *cli) runIngest(cmd *cobra.Command, args []string) (err error) {
	cfg, err := c.config()
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "loading config")
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return sgerr.Errorf(sgerr.CodeCLIInputInvalid, "opening %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	ctx := cmd.Context()
	app, err := WireGraph(ctx, cfg, c.dataDir(), c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if cfg.Search.Backend != "default" {
		c.logger.Warn("ingested elements are not added to the search index", slog.String("search", cfg.Search.Backend))
	}

	loader := ingest.NewLoader(app.Client, app.Graph, ingest.Options{
		Serializer:                serializer.New(),
		Blobs:                     app.Blobs,
		MaxStreamingTableDataSize: cfg.Graph.MaxStreamingTableDataSize,
		MaxPendingWrites:          cfg.Graph.MaxPendingWrites,
		Logger:                    c.logger,
	})

	loadErr := loader.Load(ctx, in)
	if cerr := loader.Close(context.WithoutCancel(ctx)); cerr != nil {
		return cerr
	}
	st := loader.Stats()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d vertices and %d edges\n", st.Vertices, st.Edges)
	if loadErr != nil {
		if ingest.IsRecordError(loadErr) {
			return sgerr.Wrap(loadErr, sgerr.CodeCLIInputInvalid, "invalid record")
		}
		return loadErr
	}
	return nil
}
