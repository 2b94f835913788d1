// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

func (c *cli) newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Purge rows hidden by deletion markers",
		Long:  "Rewrite the graph tables without the rows that deletions have hidden. Run it while the server is stopped.",
		Args:  cobra.NoArgs,
		RunE:  c.runCompact,
	}
}

func (c *cli) runCompact(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := c.config()
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "loading config")
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

	n, err := app.Graph.Compact(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d rows\n", n)
	return err
}

func (c *cli) newClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every vertex, edge and property",
		Long:  "Delete all rows of the graph tables and clear the search index. Requires --yes.",
		Args:  cobra.NoArgs,
		RunE:  c.runClear,
	}
	cmd.Flags().Bool("yes", false, "confirm deleting all graph data")
	return cmd
}

func (c *cli) runClear(cmd *cobra.Command, _ []string) (err error) {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return sgerr.New(sgerr.CodeCLIInputInvalid, "refusing to clear graph data without --yes")
	}
	cfg, err := c.config()
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "loading config")
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

	if err := app.Graph.ClearData(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "Graph data cleared")
	return err
}
