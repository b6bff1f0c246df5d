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
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

func TestPostgresWriterOptions(t *testing.T) {
	opts := &PostgresWriterOptions{}
	WithPostgresDSN("postgres://localhost/db")(opts)
	WithTableName("analytics", "mobility")(opts)
	WithColumns(mobility.TableSchema)(opts)
	WithCreateTable(true)(opts)
	opts.withDefaults()

	assert.Equal(t, DefaultTableBatchSize, opts.BatchSize)
	assert.Equal(t, 30*time.Second, opts.QueryTimeout)
	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.Equal(t, 2, opts.MaxIdleConns)
	assert.True(t, opts.CreateTable)
	require.NoError(t, opts.validate())
}

func postgresTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MOBILITY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MOBILITY_TEST_POSTGRES_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestPostgresWriter_ReplaceTable(t *testing.T) {
	db := postgresTestDB(t)
	ctx := context.Background()
	table := fmt.Sprintf("mobility_writer_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { db.Exec("DROP TABLE IF EXISTS " + table) })

	newWriter := func() *PostgresWriter {
		w, err := NewPostgresWriter(ctx,
			WithPostgresDB(db),
			WithTableName("", table),
			WithColumns(mobility.TableSchema),
			WithCreateTable(true),
			WithPostgresBatchSize(1),
		)
		require.NoError(t, err)
		return w
	}

	w := newWriter()
	writeAll(t, w, cleanedRows())
	require.NoError(t, w.Flush())
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Abort(), "abort after commit is a no-op")
	require.NoError(t, w.Close())
	assert.Equal(t, 2, countRows(t, db, table))
	assert.Equal(t, int64(2), w.Stats().RecordsWritten)

	var code sql.NullString
	var date time.Time
	require.NoError(t, db.QueryRow(
		`SELECT code, date FROM `+table+` WHERE country = 'Greece'`).Scan(&code, &date))
	assert.Equal(t, "EL", code.String)
	assert.Equal(t, day, core.DateOf(date))

	// An aborted run leaves the previous rows in place.
	w = newWriter()
	writeAll(t, w, cleanedRows()[:1])
	require.NoError(t, w.Abort())
	require.NoError(t, w.Close())
	assert.Equal(t, 2, countRows(t, db, table))

	// A committed empty run empties the table.
	w = newWriter()
	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Close())
	assert.Equal(t, 0, countRows(t, db, table))
}
