// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

const shutdownTimeout = 30 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graph API server",
		Long:  "Load configuration, open the graph and serve the HTTP API until interrupted.",
		RunE:  c.runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = c.v.BindPFlag("networking.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := c.config()
	if err != nil {
		return sgerr.Wrap(err, sgerr.CodeCLISetupFailure, "loading config")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := WireGraph(ctx, cfg, c.dataDir(), c.logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			c.logger.Error("shutdown failed", slog.Any("error", err))
		}
	}()

	if err := app.WireServer(cfg); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Serving securegraph on %s\n", cfg.Networking.Listen); err != nil {
		return err
	}
	return app.Start(ctx)
}
