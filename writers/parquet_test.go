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
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
	"github.com/aaronlmathis/mobility/readers"
)

// writeParquetFile encodes records into a new file under t.TempDir.
func writeParquetFile(t *testing.T, records []core.Record, opts ...WriterOptionParquet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewParquetWriter(f, opts...)
	require.NoError(t, err)
	writeAll(t, w, records)
	require.NoError(t, w.Close())
	return path
}

func readParquetFile(t *testing.T, path string) []core.Record {
	t.Helper()
	r, err := readers.NewParquetReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()
	return readAllRecords(t, r)
}

func TestParquetWriter_RoundTripWithSchema(t *testing.T) {
	rows := cleanedRows()
	path := writeParquetFile(t, rows, WithParquetSchema(mobility.TableSchema))

	got := readParquetFile(t, path)
	require.Len(t, got, 2)

	assert.Equal(t, "EL", got[0]["code"])
	assert.Equal(t, "Greece", got[0]["country"])
	assert.Equal(t, day, got[0]["date"])
	assert.Equal(t, int64(-12), got[0]["average_change"])
	assert.Equal(t, int64(-30), got[0]["transit_stations"])

	assert.Nil(t, got[1]["code"])
	assert.Nil(t, got[1]["grocery_and_pharmacy"])
	assert.Equal(t, core.Date{Year: 2020, Month: 3, Day: 15}, got[1]["date"])
	assert.Equal(t, int64(4), got[1]["average_change"])
}

func TestParquetWriter_EmptyFileWithSchema(t *testing.T) {
	path := writeParquetFile(t, nil, WithParquetSchema(mobility.TableSchema))

	r, err := readers.NewParquetReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, int64(0), r.TotalRows())
	require.Equal(t, len(mobility.TableSchema), len(r.Schema().Fields()))
	assert.Equal(t, "code", r.Schema().Field(0).Name)
	assert.Empty(t, readAllRecords(t, r))
}

func TestParquetWriter_InferredSchema(t *testing.T) {
	records := []core.Record{
		{"code": "CN", "average_change": int64(7), "date": day},
		{"code": "UK", "average_change": int64(-1), "date": day},
	}
	path := writeParquetFile(t, records, WithCompression(compress.Codecs.Gzip), WithBatchSize(1))

	got := readParquetFile(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, "UK", got[1]["code"])
	assert.Equal(t, int64(-1), got[1]["average_change"])
	assert.Equal(t, day, got[1]["date"])
}

func TestParquetWriter_TypeMismatch(t *testing.T) {
	schema := core.Schema{{Name: "average_change", Type: core.TypeInteger}}
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.parquet"))
	require.NoError(t, err)
	defer f.Close()

	w, err := NewParquetWriter(f, WithParquetSchema(schema))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"average_change": "high"}))
	err = w.Flush()
	var pqErr *ParquetWriterError
	require.ErrorAs(t, err, &pqErr)
	assert.Equal(t, "append_value", pqErr.Op)
}

func TestParquetWriter_SchemaValidation(t *testing.T) {
	schema := core.Schema{{Name: "date", Type: core.TypeDate, Required: true}}
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.parquet"))
	require.NoError(t, err)
	defer f.Close()

	w, err := NewParquetWriter(f, WithParquetSchema(schema), WithSchemaValidation(true))
	require.NoError(t, err)

	err = w.Write(context.Background(), core.Record{"date": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required value is missing")

	err = w.Write(context.Background(), core.Record{"date": day})
	assert.Error(t, err, "writer stays in error state")
}

func TestParquetWriter_WriteAfterClose(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "closed.parquet"))
	require.NoError(t, err)
	defer f.Close()

	w, err := NewParquetWriter(f, WithParquetSchema(mobility.TableSchema))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Write(context.Background(), cleanedRows()[0]))
}
