// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/securegraph/internal/config"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// cli carries the state shared by every subcommand of one root command.
type cli struct {
	v      *viper.Viper
	logger *slog.Logger
}

// NewRootCmd creates the root securegraph command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logger: slog.Default()}

	root := &cobra.Command{
		Use:           "securegraph",
		Short:         "SecureGraph: property graph storage with cell-level visibility",
		Long:          "SecureGraph stores vertices, edges and properties on a sorted key-value store and filters every read by the caller's authorizations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		c.newServeCmd(),
		c.newStatusCmd(),
		c.newIngestCmd(),
		c.newCompactCmd(),
		c.newClearCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper layers defaults, environment, the config file and flags so the
// usual precedence (flag > env > file > defaults) holds.
func (c *cli) initViper(cmd *cobra.Command) error {
	v := c.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return sgerr.Errorf(sgerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset so viper never matches the bare
		// securegraph binary in the working directory.
		v.SetConfigName("securegraph")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/securegraph")
		v.AddConfigPath("/etc/securegraph")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return sgerr.Errorf(sgerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return sgerr.Errorf(sgerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return sgerr.Errorf(sgerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return sgerr.Errorf(sgerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	c.logger = newLogger(cmd.ErrOrStderr(), v.GetBool("verbose"))
	slog.SetDefault(c.logger)
	config.WarnInsecurePermissions(v.ConfigFileUsed())
	return nil
}

// config decodes and validates the merged configuration.
func (c *cli) config() (*config.Config, error) {
	return config.FromViper(c.v)
}

func (c *cli) dataDir() string {
	if dir := c.v.GetString("data_dir"); dir != "" {
		return dir
	}
	return defaultDataDir()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
