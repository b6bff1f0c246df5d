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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

const tableHeader = "code,country,date,average_change,retail_and_recreation,grocery_and_pharmacy,parks,transit_stations,workplaces,residential"

func TestCSVWriter_BasicFunctionality(t *testing.T) {
	out := &mockWriteCloser{}
	w, err := NewCSVWriter(out, WithHeaders(mobility.TableSchema.Columns()))
	require.NoError(t, err)

	writeAll(t, w, cleanedRows())
	require.NoError(t, w.Close())

	expected := tableHeader + "\n" +
		"EL,Greece,2020-03-14,-12,-20,-5,3,-30,-25,5\n" +
		",Nowhere,2020-03-15,4,3,,5,,4,4\n"
	assert.Equal(t, expected, out.String())
	assert.True(t, out.closed)

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["code"])
	assert.Equal(t, int64(1), stats.NullValueCounts["transit_stations"])
}

func TestCSVWriter_InferredHeaders(t *testing.T) {
	var sb strings.Builder
	w, err := NewCSVWriter(&sb)
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"b": int64(1), "a": "x"}))
	require.NoError(t, w.Flush())
	assert.Equal(t, "a,b\nx,1\n", sb.String())
}

func TestCSVWriter_Options(t *testing.T) {
	record := core.Record{"code": "UK", "parks": nil}

	tests := []struct {
		name     string
		opts     []WriterOptionCSV
		expected string
	}{
		{
			name:     "semicolon delimiter",
			opts:     []WriterOptionCSV{WithComma(';')},
			expected: "code;parks\nUK;\n",
		},
		{
			name:     "no header",
			opts:     []WriterOptionCSV{WithWriteHeader(false)},
			expected: "UK,\n",
		},
		{
			name:     "null value",
			opts:     []WriterOptionCSV{WithCSVNullValue("NULL")},
			expected: "code,parks\nUK,NULL\n",
		},
		{
			name:     "crlf",
			opts:     []WriterOptionCSV{WithUseCRLF(true)},
			expected: "code,parks\r\nUK,\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			opts := append([]WriterOptionCSV{WithHeaders([]string{"code", "parks"})}, tt.opts...)
			w, err := NewCSVWriter(&sb, opts...)
			require.NoError(t, err)
			require.NoError(t, w.Write(context.Background(), record))
			require.NoError(t, w.Close())
			assert.Equal(t, tt.expected, sb.String())
		})
	}
}

func TestCSVWriter_Batching(t *testing.T) {
	var sb strings.Builder
	w, err := NewCSVWriter(&sb, WithHeaders([]string{"code"}), WithCSVBatchSize(1))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"code": "CN"}))
	assert.Equal(t, "code\nCN\n", sb.String(), "a full batch is written without an explicit flush")
	assert.Equal(t, int64(1), w.Stats().FlushCount)
}

func TestCSVWriter_HeaderOnlyWhenEmpty(t *testing.T) {
	var sb strings.Builder
	w, err := NewCSVWriter(&sb, WithHeaders(mobility.TableSchema.Columns()))
	require.NoError(t, err)

	require.NoError(t, w.Flush())
	assert.Equal(t, tableHeader+"\n", sb.String())
}

func TestCSVWriter_WriteFailure(t *testing.T) {
	out := &mockWriteCloser{failWrite: true}
	w, err := NewCSVWriter(out, WithHeaders([]string{"code"}))
	require.NoError(t, err)

	require.NoError(t, w.Write(context.Background(), core.Record{"code": "EL"}))
	err = w.Flush()
	require.Error(t, err)

	var csvErr *CSVWriterError
	assert.ErrorAs(t, err, &csvErr)
}

func TestCSVWriter_CloseError(t *testing.T) {
	out := &mockWriteCloser{failClose: true}
	w, err := NewCSVWriter(out, WithHeaders([]string{"code"}))
	require.NoError(t, err)

	assert.EqualError(t, w.Close(), "close failed")
}
