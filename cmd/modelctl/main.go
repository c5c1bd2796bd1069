// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

// Command modelctl works with fusion models offline: it extracts feature
// bundles, trains and evaluates a pipeline on a dataset file, and issues
// API tokens. It reads the same configuration as the server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/fusionserve/internal/config"
	"github.com/tomtom215/fusionserve/internal/logging"
)

var version = "dev"

// app carries the state shared by subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "modelctl",
		Short: "Offline tooling for fusionserve models",
		Long: `modelctl runs the fusionserve feature extractor and model pipeline
locally. Configuration is read like the server: defaults, then the config
file, then environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: "+config.ConfigPathEnvVar+" or ./config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(a.extractCmd())
	root.AddCommand(a.trainCmd())
	root.AddCommand(a.tokenCmd())
	root.AddCommand(versionCmd())
	return root
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	path := a.configPath
	if path == "" {
		path = config.FilePath()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		if !logging.ValidLevel(a.logLevel) {
			return fmt.Errorf("invalid log level %q", a.logLevel)
		}
		cfg.Logging.Level = a.logLevel
	}

	lc := cfg.LoggingConfig()
	lc.Format = "console"
	lc.Output = cmd.ErrOrStderr()
	logging.Init(lc)

	a.cfg = cfg
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modelctl %s\n", version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
