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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/mobility/config"
	"github.com/aaronlmathis/mobility/mobility"
)

func (c *cli) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Print the query the configured source will run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.load(cmd)
			if err != nil {
				return err
			}
			q, err := sourceQuery(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), q)
			return nil
		},
	}
}

// sourceQuery renders the selection for query-capable sources. An explicit
// source.query is used verbatim, wrapped in a LIMIT for bounded runs.
func sourceQuery(cfg *config.Config) (string, error) {
	switch cfg.Source.Kind {
	case config.SourcePostgres, config.SourceBigQuery:
		return mobility.SourceQuery{
			Table:    cfg.Source.Table,
			Override: cfg.Source.Query,
			Limit:    cfg.EffectiveLimit(),
		}.SQL(), nil
	case config.SourceMongo:
		sort := make([]string, len(mobility.SourceOrder))
		for i, field := range mobility.SourceOrder {
			sort[i] = field + ": 1"
		}
		q := fmt.Sprintf("db.%s.find({}).sort({%s})", cfg.Source.Collection, strings.Join(sort, ", "))
		if limit := cfg.EffectiveLimit(); limit > 0 {
			q += fmt.Sprintf(".limit(%d)", limit)
		}
		return q, nil
	default:
		return "", fmt.Errorf("source kind %q does not run a query", cfg.Source.Kind)
	}
}
