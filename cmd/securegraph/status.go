// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

func (c *cli) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show server status",
		Long:  "Check the running server's health endpoint.",
		RunE:  c.runStatus,
	}

	cmd.Flags().String("address", "127.0.0.1:18790", "server address to check")

	return cmd
}

func (c *cli) runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	var body struct {
		Status string `json:"status"`
	}
	if err := newAPIClient(addr).getJSON("/health", &body); err != nil {
		if sgerr.HasCode(err, sgerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "Server at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Server at %s: %s\n", addr, body.Status)
	return nil
}
