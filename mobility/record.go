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
	"github.com/aaronlmathis/mobility/core"
)

// Package mobility implements the cleaning rules for daily regional-mobility
// change records: validity filtering, the average_change summary metric, and
// region code normalization.

// Source column names as exposed by the staging table.
const (
	ColCountryRegionCode = "country_region_code"
	ColCountryRegion     = "country_region"
	ColDate              = "date"

	// SourceSuffix is appended to each category name in the source columns.
	SourceSuffix = "_percent_change_from_baseline"
)

// Output column names of the cleaned table.
const (
	ColCode          = "code"
	ColCountry       = "country"
	ColAverageChange = "average_change"
)

// Categories lists the six mobility categories in their fixed order.
var Categories = []string{
	"retail_and_recreation",
	"grocery_and_pharmacy",
	"parks",
	"transit_stations",
	"workplaces",
	"residential",
}

// SourceColumns returns the raw columns the reader must provide, in table order.
func SourceColumns() []string {
	cols := []string{ColCountryRegionCode, ColCountryRegion, ColDate}
	for _, c := range Categories {
		cols = append(cols, c+SourceSuffix)
	}
	return cols
}

// TableSchema is the fixed schema of the cleaned table.
var TableSchema = mustParseSchema("code:STRING, country:STRING, date:DATE, average_change:INTEGER, " +
	"retail_and_recreation:INTEGER, grocery_and_pharmacy:INTEGER, parks:INTEGER, " +
	"transit_stations:INTEGER, workplaces:INTEGER, residential:INTEGER")

func mustParseSchema(s string) core.Schema {
	schema, err := core.ParseSchema(s)
	if err != nil {
		panic(err)
	}
	return schema
}

// Changes holds the six percentage changes from baseline, in Categories order.
// A nil entry means the value was not reported for that region and date.
type Changes [6]*int64

// Present returns the non-nil changes in category order.
func (c Changes) Present() []int64 {
	present := make([]int64, 0, len(c))
	for _, v := range c {
		if v != nil {
			present = append(present, *v)
		}
	}
	return present
}

// RawRecord is one observation for a (region, date) pair as read from the source.
type RawRecord struct {
	CountryRegionCode *string
	CountryRegion     string
	Date              core.Date
	Changes           Changes
}

// CleanedRecord is a validated, normalized observation ready for publication.
type CleanedRecord struct {
	// Code is the normalized region code. It is nil only when the source code was null.
	Code          *string
	Country       string
	Date          core.Date
	AverageChange int64
	Changes       Changes
}

// Record converts c into a core.Record keyed by TableSchema column names.
// Null codes and changes are stored as nil values.
func (c CleanedRecord) Record() core.Record {
	rec := core.Record{
		ColCode:          nil,
		ColCountry:       c.Country,
		ColDate:          c.Date,
		ColAverageChange: c.AverageChange,
	}
	if c.Code != nil {
		rec[ColCode] = *c.Code
	}
	for i, name := range Categories {
		if v := c.Changes[i]; v != nil {
			rec[name] = *v
		} else {
			rec[name] = nil
		}
	}
	return rec
}

// Int64 returns a pointer to v. It is a convenience for building Changes.
func Int64(v int64) *int64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
