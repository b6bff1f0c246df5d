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

package writers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"mobility"`, QuoteIdentifier(DialectPostgres, "mobility"))
	assert.Equal(t, `"we""ird"`, QuoteIdentifier(DialectPostgres, `we"ird`))
	assert.Equal(t, "`mobility`", QuoteIdentifier(DialectMySQL, "mobility"))
	assert.Equal(t, "`we``ird`", QuoteIdentifier(DialectMySQL, "we`ird"))

	assert.Equal(t, `"public"."mobility"`, QualifiedName(DialectPostgres, "public", "mobility"))
	assert.Equal(t, "`mobility`", QualifiedName(DialectMySQL, "", "mobility"))
}

func TestCreateTableSQL(t *testing.T) {
	schema := core.Schema{
		{Name: "code", Type: core.TypeString},
		{Name: "date", Type: core.TypeDate, Required: true},
		{Name: "average_change", Type: core.TypeInteger},
	}

	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "public"."mobility" ("code" TEXT, "date" DATE NOT NULL, "average_change" BIGINT)`,
		CreateTableSQL(DialectPostgres, `"public"."mobility"`, schema))
	assert.Equal(t,
		"CREATE TABLE `stg` (`code` VARCHAR(255), `date` DATE NOT NULL, `average_change` BIGINT)",
		createTableSQL(DialectMySQL, "`stg`", schema, false))
}

func TestInsertSQL(t *testing.T) {
	cols := []string{"a", "b"}
	assert.Equal(t,
		`INSERT INTO t ("a", "b") VALUES ($1, $2), ($3, $4)`,
		insertSQL(DialectPostgres, "t", cols, 2))
	assert.Equal(t,
		"INSERT INTO t (`a`, `b`) VALUES (?, ?), (?, ?), (?, ?)",
		insertSQL(DialectMySQL, "t", cols, 3))
}

func TestInsertArgs(t *testing.T) {
	records := []core.Record{
		{"a": "x", "b": int64(1)},
		{"b": int64(2), "ignored": true},
	}
	assert.Equal(t, []interface{}{"x", int64(1), nil, int64(2)}, insertArgs(records, []string{"a", "b"}))
}

func TestStagingName(t *testing.T) {
	assert.Equal(t, "mobility__stg_abc", stagingName("mobility", "stg", "abc"))

	long := stagingName(strings.Repeat("t", 80), "old", "0123456789ab")
	assert.Len(t, long, 64)
	assert.True(t, strings.HasSuffix(long, "__old_0123456789ab"), "the unique suffix survives truncation")
}

func TestPostgresWriterValidation(t *testing.T) {
	tests := []struct {
		name    string
		options []PostgresWriterOption
		message string
	}{
		{"missing dsn", []PostgresWriterOption{WithTableName("", "mobility"), WithColumns(mobility.TableSchema)}, "dsn is required"},
		{"missing table", []PostgresWriterOption{WithPostgresDSN("postgres://localhost/db"), WithColumns(mobility.TableSchema)}, "table name is required"},
		{"missing columns", []PostgresWriterOption{WithPostgresDSN("postgres://localhost/db"), WithTableName("", "mobility")}, "columns are required"},
		{"batch too large", []PostgresWriterOption{
			WithPostgresDSN("postgres://localhost/db"),
			WithTableName("", "mobility"),
			WithColumns(mobility.TableSchema),
			WithPostgresBatchSize(10000),
		}, "bind parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPostgresWriter(t.Context(), tt.options...)
			var pgErr *PostgresWriterError
			require.ErrorAs(t, err, &pgErr)
			assert.Equal(t, "validate", pgErr.Op)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestMySQLWriterValidation(t *testing.T) {
	_, err := NewMySQLWriter(t.Context(), WithMySQLColumns(mobility.TableSchema))
	var myErr *MySQLWriterError
	require.ErrorAs(t, err, &myErr)
	assert.Equal(t, "validate", myErr.Op)

	_, err = NewMySQLWriter(t.Context(), WithMySQLTable("", "mobility"), WithMySQLColumns(mobility.TableSchema))
	require.ErrorAs(t, err, &myErr)
	assert.Contains(t, err.Error(), "dsn is required")

	_, err = NewMySQLWriter(t.Context(), WithMySQLTable("", "mobility"), WithMySQLColumns(mobility.TableSchema), WithMySQLDSN("not a dsn"))
	require.ErrorAs(t, err, &myErr)
	assert.Equal(t, "parse_dsn", myErr.Op)
}
