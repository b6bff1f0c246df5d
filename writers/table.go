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
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/aaronlmathis/mobility/core"
)

// Dialect selects SQL syntax for the table writers.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// QuoteIdentifier quotes a single identifier for d.
func QuoteIdentifier(d Dialect, name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return pq.QuoteIdentifier(name)
}

// QualifiedName quotes namespace.table, or just table when namespace is empty.
func QualifiedName(d Dialect, namespace, table string) string {
	if namespace == "" {
		return QuoteIdentifier(d, table)
	}
	return QuoteIdentifier(d, namespace) + "." + QuoteIdentifier(d, table)
}

// ColumnType returns the SQL column type for a logical field type.
func ColumnType(d Dialect, t core.FieldType) string {
	switch t {
	case core.TypeInteger:
		return "BIGINT"
	case core.TypeDate:
		return "DATE"
	default:
		if d == DialectMySQL {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for schema.
func CreateTableSQL(d Dialect, qualifiedName string, schema core.Schema) string {
	return createTableSQL(d, qualifiedName, schema, true)
}

func createTableSQL(d Dialect, qualifiedName string, schema core.Schema, ifNotExists bool) string {
	cols := make([]string, len(schema))
	for i, f := range schema {
		col := QuoteIdentifier(d, f.Name) + " " + ColumnType(d, f.Type)
		if f.Required {
			col += " NOT NULL"
		}
		cols[i] = col
	}
	clause := "CREATE TABLE "
	if ifNotExists {
		clause += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (%s)", clause, qualifiedName, strings.Join(cols, ", "))
}

// insertSQL renders a multi-row INSERT with rows placeholder tuples.
func insertSQL(d Dialect, qualifiedName string, columns []string, rows int) string {
	var sb strings.Builder
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdentifier(d, c)
	}
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", qualifiedName, strings.Join(quoted, ", "))

	n := 0
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			n++
			if d == DialectMySQL {
				sb.WriteByte('?')
			} else {
				fmt.Fprintf(&sb, "$%d", n)
			}
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// insertArgs flattens records into positional arguments in column order.
// Missing fields bind as NULL.
func insertArgs(records []core.Record, columns []string) []interface{} {
	args := make([]interface{}, 0, len(records)*len(columns))
	for _, record := range records {
		for _, c := range columns {
			args = append(args, record[c])
		}
	}
	return args
}

// maxBindParams is the PostgreSQL limit on parameters per statement.
const maxBindParams = 65535

// DefaultTableBatchSize is the number of records per INSERT statement or load batch.
const DefaultTableBatchSize = 100
