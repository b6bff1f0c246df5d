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

package mobility

import (
	"testing"
	"time"

	"github.com/aaronlmathis/mobility/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var march1 = core.Date{Year: 2020, Month: time.March, Day: 1}

func rawRecord(code *string, changes ...*int64) RawRecord {
	raw := RawRecord{CountryRegionCode: code, CountryRegion: "Somewhere", Date: march1}
	copy(raw.Changes[:], changes)
	return raw
}

func allChanges() []*int64 {
	return []*int64{Int64(-10), Int64(3), Int64(5), Int64(-20), Int64(-15), Int64(8)}
}

func TestTransform_GreeceExample(t *testing.T) {
	raw := RawRecord{
		CountryRegionCode: String("GR"),
		CountryRegion:     "Greece",
		Date:              march1,
		Changes:           Changes{Int64(-10), nil, Int64(5), nil, nil, nil},
	}

	cleaned, verdict := Transform(raw)
	require.Equal(t, Admitted, verdict)
	require.NotNil(t, cleaned.Code)
	assert.Equal(t, "EL", *cleaned.Code)
	assert.Equal(t, "Greece", cleaned.Country)
	assert.Equal(t, march1, cleaned.Date)
	// mean(-10, 5) = -2.5, ties to even
	assert.Equal(t, int64(-2), cleaned.AverageChange)
	assert.Equal(t, raw.Changes, cleaned.Changes)
	assert.Nil(t, cleaned.Changes[1])
}

func TestTransform_InsufficientDeltas(t *testing.T) {
	tests := []struct {
		name    string
		changes []*int64
	}{
		{"none reported", nil},
		{"one reported", []*int64{nil, nil, Int64(4)}},
		{"one reported zero", []*int64{Int64(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verdict := Transform(rawRecord(String("US"), tt.changes...))
			assert.Equal(t, DroppedInsufficient, verdict)
		})
	}
}

func TestTransform_ReportedZeroCountsAsPresent(t *testing.T) {
	cleaned, verdict := Transform(rawRecord(String("US"), Int64(0), Int64(0)))
	require.Equal(t, Admitted, verdict)
	assert.Equal(t, int64(0), cleaned.AverageChange)
	assert.Equal(t, int64(0), *cleaned.Changes[0])
}

func TestTransform_ReunionAlwaysDropped(t *testing.T) {
	_, verdict := Transform(rawRecord(String("RE"), allChanges()...))
	assert.Equal(t, DroppedExcluded, verdict)

	_, verdict = Transform(rawRecord(String("RE"), Int64(1)))
	assert.Equal(t, DroppedInsufficient, verdict)
}

func TestTransform_RegionCodes(t *testing.T) {
	tests := []struct {
		in   *string
		want *string
	}{
		{String("GR"), String("EL")},
		{String("GB"), String("UK")},
		{String("HK"), String("CN")},
		{String("US"), String("US")},
		{String("EL"), String("EL")},
		{String("UK"), String("UK")},
		{String("gr"), String("gr")},
		{String(""), String("")},
		{nil, nil},
	}
	for _, tt := range tests {
		name := "<nil>"
		if tt.in != nil {
			name = *tt.in
		}
		t.Run(name, func(t *testing.T) {
			cleaned, verdict := Transform(rawRecord(tt.in, allChanges()...))
			require.Equal(t, Admitted, verdict)
			assert.Equal(t, tt.want, cleaned.Code)
		})
	}
}

func TestTransform_MeanIgnoresNulls(t *testing.T) {
	// With nulls treated as zero the mean would be 30/6 = 5.
	cleaned, verdict := Transform(rawRecord(String("FR"), Int64(10), nil, Int64(20), nil, nil, nil))
	require.Equal(t, Admitted, verdict)
	assert.Equal(t, int64(15), cleaned.AverageChange)
}

func TestAverageChange_Rounding(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   int64
	}{
		{"exact", []int64{-10, -20}, -15},
		{"tie down to even", []int64{2, 3}, 2},
		{"tie up to even", []int64{3, 4}, 4},
		{"negative tie to even", []int64{-10, 5}, -2},
		{"negative tie away to even", []int64{-3, 0}, -2},
		{"minus half to zero", []int64{-1, 0}, 0},
		{"plus half to zero", []int64{1, 0}, 0},
		{"below half", []int64{1, 0, 0}, 0},
		{"above half", []int64{2, 0, 0}, 1},
		{"negative above half", []int64{-2, 0, 0}, -1},
		{"six way tie", []int64{1, 1, 1, 0, 0, 0}, 0},
		{"six way tie odd", []int64{3, 3, 3, 0, 0, 0}, 2},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AverageChange(tt.values))
		})
	}
}

func TestTransform_Deterministic(t *testing.T) {
	raw := rawRecord(String("GB"), allChanges()...)
	first, v1 := Transform(raw)
	second, v2 := Transform(raw)
	assert.Equal(t, v1, v2)
	assert.Equal(t, first, second)
}

func TestNormalizeRegion_DoesNotAliasInput(t *testing.T) {
	code := "GB"
	normalized, excluded := NormalizeRegion(&code)
	assert.False(t, excluded)
	assert.Equal(t, "UK", *normalized)
	assert.Equal(t, "GB", code)
	assert.Equal(t, []string{"RE"}, ExcludedRegions())
}

func TestCleanedRecord_Record(t *testing.T) {
	cleaned := CleanedRecord{
		Code:          String("EL"),
		Country:       "Greece",
		Date:          march1,
		AverageChange: -2,
		Changes:       Changes{Int64(-10), nil, Int64(5), nil, nil, nil},
	}
	rec := cleaned.Record()
	assert.Len(t, rec, len(TableSchema))
	for _, col := range TableSchema.Columns() {
		_, ok := rec[col]
		assert.True(t, ok, "missing column %s", col)
	}
	assert.Equal(t, "EL", rec["code"])
	assert.Equal(t, int64(-10), rec["retail_and_recreation"])
	assert.Nil(t, rec["grocery_and_pharmacy"])
	assert.Equal(t, march1, rec["date"])

	cleaned.Code = nil
	assert.Nil(t, cleaned.Record()["code"])
}

func TestTableSchema(t *testing.T) {
	want := append([]string{ColCode, ColCountry, ColDate, ColAverageChange}, Categories...)
	assert.Equal(t, want, TableSchema.Columns())

	date, ok := TableSchema.Lookup(ColDate)
	assert.True(t, ok)
	assert.Equal(t, core.TypeDate, date.Type)
}
