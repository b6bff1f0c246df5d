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

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/mobility"
)

func TestMySQLWriter_SwapTable(t *testing.T) {
	dsn := os.Getenv("MOBILITY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("MOBILITY_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()

	table := fmt.Sprintf("mobility_writer_test_%d", time.Now().UnixNano())
	defer db.Exec("DROP TABLE IF EXISTS " + QuoteIdentifier(DialectMySQL, table))

	run := func(records int, commit bool) MySQLWriterStats {
		w, err := NewMySQLWriter(ctx, WithMySQLDB(db), WithMySQLTable("", table), WithMySQLColumns(mobility.TableSchema))
		require.NoError(t, err)
		writeAll(t, w, cleanedRows()[:records])
		if commit {
			require.NoError(t, w.Commit(ctx))
		} else {
			require.NoError(t, w.Abort())
		}
		require.NoError(t, w.Close())
		return w.Stats()
	}

	count := func() int {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+QuoteIdentifier(DialectMySQL, table)).Scan(&n))
		return n
	}

	stats := run(2, true)
	assert.True(t, stats.Committed)
	assert.NoError(t, stats.CleanupErr)
	assert.Equal(t, 2, count())

	run(1, false)
	assert.Equal(t, 2, count())

	run(1, true)
	assert.Equal(t, 1, count())

	var leftovers int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name LIKE ?",
		table+"\\_\\_%").Scan(&leftovers))
	assert.Zero(t, leftovers, "staging and retired tables are dropped")
}
