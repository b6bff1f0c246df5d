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
	"io"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/mobility/config"
	"github.com/aaronlmathis/mobility/mobility"
	"github.com/aaronlmathis/mobility/writers"
)

func (c *cli) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the cleaned table definition for the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.load(cmd)
			if err != nil {
				return err
			}
			return printSchema(cmd.OutOrStdout(), cfg.Table)
		},
	}
}

// printSchema writes DDL for SQL backends, the JSON schema for BigQuery and
// the NAME:TYPE form otherwise.
func printSchema(w io.Writer, table config.TableConfig) error {
	switch table.Backend {
	case config.TablePostgres:
		name := writers.QualifiedName(writers.DialectPostgres, table.Dataset, table.Name)
		_, err := fmt.Fprintln(w, writers.CreateTableSQL(writers.DialectPostgres, name, mobility.TableSchema)+";")
		return err
	case config.TableMySQL:
		name := writers.QualifiedName(writers.DialectMySQL, table.Dataset, table.Name)
		_, err := fmt.Fprintln(w, writers.CreateTableSQL(writers.DialectMySQL, name, mobility.TableSchema)+";")
		return err
	case config.TableBigQuery:
		fields, err := writers.BigQuerySchema(mobility.TableSchema).ToJSONFields()
		if err != nil {
			return fmt.Errorf("render bigquery schema: %w", err)
		}
		_, err = fmt.Fprintln(w, string(fields))
		return err
	default:
		_, err := fmt.Fprintln(w, mobility.TableSchema.String())
		return err
	}
}
