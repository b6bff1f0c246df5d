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
	"errors"
	"testing"
	"time"

	"github.com/aaronlmathis/mobility/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceRecord() core.Record {
	return core.Record{
		"country_region_code": "GR",
		"country_region":      "Greece",
		"date":                "2020-03-01",
		"retail_and_recreation_percent_change_from_baseline": int64(-10),
		"grocery_and_pharmacy_percent_change_from_baseline":  nil,
		"parks_percent_change_from_baseline":                 5,
		"transit_stations_percent_change_from_baseline":      float64(-7),
		"workplaces_percent_change_from_baseline":            "12",
		"residential_percent_change_from_baseline":           "",
	}
}

func TestDecode(t *testing.T) {
	raw, err := Decode(sourceRecord())
	require.NoError(t, err)

	require.NotNil(t, raw.CountryRegionCode)
	assert.Equal(t, "GR", *raw.CountryRegionCode)
	assert.Equal(t, "Greece", raw.CountryRegion)
	assert.Equal(t, core.Date{Year: 2020, Month: time.March, Day: 1}, raw.Date)
	assert.Equal(t, int64(-10), *raw.Changes[0])
	assert.Nil(t, raw.Changes[1])
	assert.Equal(t, int64(5), *raw.Changes[2])
	assert.Equal(t, int64(-7), *raw.Changes[3])
	assert.Equal(t, int64(12), *raw.Changes[4])
	assert.Nil(t, raw.Changes[5])
}

func TestDecode_DateShapes(t *testing.T) {
	want := core.Date{Year: 2020, Month: time.March, Day: 1}
	for _, v := range []interface{}{want, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "2020-03-01"} {
		rec := sourceRecord()
		rec["date"] = v
		raw, err := Decode(rec)
		require.NoError(t, err)
		assert.Equal(t, want, raw.Date)
	}
}

func TestDecode_NullCodeAllowed(t *testing.T) {
	rec := sourceRecord()
	rec["country_region_code"] = nil
	raw, err := Decode(rec)
	require.NoError(t, err)
	assert.Nil(t, raw.CountryRegionCode)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(core.Record)
		field  string
	}{
		{"missing date", func(r core.Record) { delete(r, "date") }, "date"},
		{"null date", func(r core.Record) { r["date"] = nil }, "date"},
		{"bad date", func(r core.Record) { r["date"] = "01/03/2020" }, "date"},
		{"numeric date", func(r core.Record) { r["date"] = 20200301 }, "date"},
		{"null country", func(r core.Record) { r["country_region"] = nil }, "country_region"},
		{"numeric code", func(r core.Record) { r["country_region_code"] = 30 }, "country_region_code"},
		{"missing change column", func(r core.Record) { delete(r, "parks_percent_change_from_baseline") }, "parks_percent_change_from_baseline"},
		{"fractional change", func(r core.Record) { r["parks_percent_change_from_baseline"] = 1.5 }, "parks_percent_change_from_baseline"},
		{"text change", func(r core.Record) { r["parks_percent_change_from_baseline"] = "n/a" }, "parks_percent_change_from_baseline"},
		{"bool change", func(r core.Record) { r["parks_percent_change_from_baseline"] = true }, "parks_percent_change_from_baseline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sourceRecord()
			tt.mutate(rec)
			_, err := Decode(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.field, decodeErr.Field)
		})
	}
}
