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

package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

func csvRow() core.Record {
	return core.Record{
		"country_region_code": " GR ",
		"country_region":      "Greece",
		"date":                "2020-03-14",
		"parks":               "",
		"extra":               "x",
	}
}

func TestSelect(t *testing.T) {
	out, err := Select("country_region", "date", "missing").Transform(context.Background(), csvRow())
	require.NoError(t, err)
	assert.Equal(t, core.Record{"country_region": "Greece", "date": "2020-03-14"}, out)
}

func TestSelect_NoMatchingField(t *testing.T) {
	out, err := Select("country_region").Transform(context.Background(), core.Record{"Country": "Greece"})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestRename(t *testing.T) {
	in := core.Record{"Region Code": "UK", "country_region": "United Kingdom"}
	out, err := Rename(map[string]string{"Region Code": "country_region_code"}).Transform(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, core.Record{"country_region_code": "UK", "country_region": "United Kingdom"}, out)
	assert.Contains(t, in, "Region Code", "input is not modified")

	_, err = Rename(map[string]string{"Region Code": "country_region"}).Transform(context.Background(), in)
	assert.ErrorContains(t, err, "already present")
}

func TestTrimSpace(t *testing.T) {
	out, err := TrimSpace("country_region_code").Transform(context.Background(), csvRow())
	require.NoError(t, err)
	assert.Equal(t, "GR", out["country_region_code"])

	all, err := TrimSpace().Transform(context.Background(), core.Record{"a": " x ", "b": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, core.Record{"a": "x", "b": int64(1)}, all)
}

func TestNullIfEmpty(t *testing.T) {
	out, err := NullIfEmpty().Transform(context.Background(), csvRow())
	require.NoError(t, err)
	assert.Nil(t, out["parks"])
	assert.Contains(t, out, "parks")
	assert.Equal(t, "Greece", out["country_region"])
}

func TestRemoveFields(t *testing.T) {
	out, err := RemoveFields("extra", "parks").Transform(context.Background(), csvRow())
	require.NoError(t, err)
	assert.NotContains(t, out, "extra")
	assert.NotContains(t, out, "parks")
	assert.Len(t, out, 3)
}

func TestChain_FeedsMobilityTransformer(t *testing.T) {
	row := core.Record{
		"country_region_code": " GR ",
		"country_region":      "Greece",
		"date":                "2020-03-14",
		"extra":               "ignored",
	}
	for _, c := range mobility.Categories {
		row[c+mobility.SourceSuffix] = ""
	}
	row["parks"+mobility.SourceSuffix] = "-3"
	row["residential"+mobility.SourceSuffix] = "-2"

	chain := Chain(
		Select(mobility.SourceColumns()...),
		TrimSpace(),
		NullIfEmpty(),
		mobility.NewTransformer(),
	)
	out, err := chain.Transform(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "EL", out[mobility.ColCode])
	assert.Equal(t, int64(-2), out[mobility.ColAverageChange], "-2.5 rounds half to even")
	assert.Nil(t, out["workplaces"])
}

func TestChain_StopsOnDrop(t *testing.T) {
	calls := 0
	counter := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		calls++
		return r, nil
	})
	drop := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		return nil, nil
	})

	out, err := Chain(counter, drop, counter).Transform(context.Background(), core.Record{"a": 1})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 1, calls)
}

func TestChain_EmptyRecordIsNotADrop(t *testing.T) {
	var seen core.Record
	last := core.TransformFunc(func(ctx context.Context, r core.Record) (core.Record, error) {
		seen = r
		return r, nil
	})

	out, err := Chain(Select("country_region"), last).Transform(context.Background(), core.Record{"Country": "Greece"})
	require.NoError(t, err)
	assert.NotNil(t, seen)
	assert.Equal(t, core.Record{}, out)
}
