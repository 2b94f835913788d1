// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/securegraph/internal/secrets"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// secretService is the keyring service secrets are stored under unless the
// name carries its own.
const secretService = "securegraph"

// secretStoreFactory is swapped out in tests.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API tokens stored in the OS keyring",
		Long: `Store API tokens in the operating system keyring. Reference a stored
token from auth.tokens[].token as keyring://securegraph/<name>.`,
	}
	cmd.AddCommand(newSecretSetCmd(), newSecretDeleteCmd())
	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret read from standard input",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretSet,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	sc := bufio.NewScanner(cmd.InOrStdin())
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return sgerr.Errorf(sgerr.CodeCLIInputInvalid, "reading secret: %w", err)
		}
		return sgerr.New(sgerr.CodeCLIInputInvalid, "no secret given on standard input")
	}
	value := strings.TrimSpace(sc.Text())
	if value == "" {
		return sgerr.New(sgerr.CodeCLIInputInvalid, "secret must not be empty")
	}

	if err := secretStoreFactory().Set(secretService, name, value); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", secrets.KeyringURI(secretService, name))
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := secretStoreFactory().Delete(secretService, name); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}

// resolveTokens replaces keyring:// references in the configured tokens.
func resolveTokens(store secrets.Store, tokens []string) ([]string, error) {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		v, err := secrets.Resolve(store, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
