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
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

// mockWriteCloser records everything written and whether it was closed.
type mockWriteCloser struct {
	strings.Builder
	closed    bool
	failWrite bool
	failClose bool
}

func (m *mockWriteCloser) Write(p []byte) (int, error) {
	if m.failWrite {
		return 0, errors.New("write failed")
	}
	return m.Builder.Write(p)
}

func (m *mockWriteCloser) Close() error {
	if m.failClose {
		return errors.New("close failed")
	}
	m.closed = true
	return nil
}

var day = core.Date{Year: 2020, Month: time.March, Day: 14}

// cleanedRows returns two cleaned records in table form. The second has a
// null region code and two unreported categories.
func cleanedRows() []core.Record {
	first := mobility.CleanedRecord{
		Code:          mobility.String("EL"),
		Country:       "Greece",
		Date:          day,
		AverageChange: -12,
		Changes: mobility.Changes{
			mobility.Int64(-20), mobility.Int64(-5), mobility.Int64(3),
			mobility.Int64(-30), mobility.Int64(-25), mobility.Int64(5),
		},
	}
	second := mobility.CleanedRecord{
		Country:       "Nowhere",
		Date:          core.DateOf(day.Time().AddDate(0, 0, 1)),
		AverageChange: 4,
		Changes: mobility.Changes{
			mobility.Int64(3), nil, mobility.Int64(5), nil, mobility.Int64(4), mobility.Int64(4),
		},
	}
	return []core.Record{first.Record(), second.Record()}
}

func writeAll(t *testing.T, sink core.DataSink, records []core.Record) {
	t.Helper()
	ctx := context.Background()
	for _, r := range records {
		require.NoError(t, sink.Write(ctx, r))
	}
}

func readAllRecords(t *testing.T, src core.DataSource) []core.Record {
	t.Helper()
	var out []core.Record
	for {
		rec, err := src.Read(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}
