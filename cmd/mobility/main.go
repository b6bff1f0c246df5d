//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL Mobility.
//
// GoETL Mobility is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL Mobility is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL Mobility. If not, see https://www.gnu.org/licenses/.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/mobility/config"
)

// Command mobility cleans daily regional-mobility records and publishes them
// as a run log and an atomically replaced table.

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// cli holds the state shared by the subcommands.
type cli struct {
	configFile string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "mobility",
		Short:         "Mobility change ETL: clean, log and publish regional mobility records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", os.Getenv("MOBILITY_CONFIG"), "Config file (or $MOBILITY_CONFIG); default ./mobility.yaml")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("mode", "", "Run mode: local (bounded) or full")
	flags.Int("limit", 0, "Maximum source rows; 0 uses the mode default")
	flags.Int("workers", 0, "Worker pool size; 0 uses the mode default")

	root.AddCommand(
		c.runCmd(),
		c.schemaCmd(),
		c.queryCmd(),
	)
	return root
}

// load resolves the configuration for cmd, including any flags it was given.
func (c *cli) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(c.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newLogger builds a text or JSON slog logger at the named level.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
