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

package validators

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/mobility"
)

func rawRecord() core.Record {
	rec := core.Record{
		mobility.ColCountryRegionCode: "GR",
		mobility.ColCountryRegion:     "Greece",
		mobility.ColDate:              core.Date{Year: 2020, Month: time.March, Day: 14},
	}
	for _, c := range mobility.Categories {
		rec[c+mobility.SourceSuffix] = int64(-3)
	}
	return rec
}

func TestSourceValidator_Accepts(t *testing.T) {
	v := SourceValidator()
	require.NoError(t, v.Validate(context.Background(), rawRecord()))

	text := rawRecord()
	text[mobility.ColDate] = "2020-03-14"
	text["parks"+mobility.SourceSuffix] = " 12 "
	text["residential"+mobility.SourceSuffix] = ""
	text["workplaces"+mobility.SourceSuffix] = nil
	text["grocery_and_pharmacy"+mobility.SourceSuffix] = float64(4)
	text[mobility.ColCountryRegionCode] = nil
	assert.NoError(t, v.Validate(context.Background(), text))
}

func TestSourceValidator_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(core.Record)
	}{
		{"missing column", "parks" + mobility.SourceSuffix, func(r core.Record) { delete(r, "parks"+mobility.SourceSuffix) }},
		{"null country", mobility.ColCountryRegion, func(r core.Record) { r[mobility.ColCountryRegion] = nil }},
		{"null date", mobility.ColDate, func(r core.Record) { r[mobility.ColDate] = nil }},
		{"bad date", mobility.ColDate, func(r core.Record) { r[mobility.ColDate] = "14/03/2020" }},
		{"fractional change", "parks" + mobility.SourceSuffix, func(r core.Record) { r["parks"+mobility.SourceSuffix] = 1.5 }},
		{"text change", "parks" + mobility.SourceSuffix, func(r core.Record) { r["parks"+mobility.SourceSuffix] = "n/a" }},
		{"numeric code", mobility.ColCountryRegionCode, func(r core.Record) { r[mobility.ColCountryRegionCode] = 30 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rawRecord()
			tt.edit(rec)
			err := SourceValidator().Validate(context.Background(), rec)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestFieldValidatorRules(t *testing.T) {
	min, max := int64(-100), int64(100)
	v := NewRecordValidator(nil,
		WithForbiddenFields("debug"),
		WithFieldValidator("code", FieldValidator{
			DataType:      FieldTypeString,
			Pattern:       regexp.MustCompile(`^[A-Z]{2}$`),
			AllowedValues: []string{"EL", "UK"},
		}),
		WithFieldValidator("average_change", FieldValidator{DataType: FieldTypeInteger, MinValue: &min, MaxValue: &max}),
		WithFieldValidator("country", FieldValidator{
			DataType: FieldTypeAny,
			CustomFunc: func(v interface{}) error {
				if v == "Nowhere" {
					return errors.New("unknown country")
				}
				return nil
			},
		}),
	)
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, core.Record{"code": "EL", "average_change": int64(5)}))
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"code": "el"}), "does not match")
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"code": "CN"}), "not in allowed values")
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"average_change": int64(101)}), "above maximum")
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"average_change": "-101"}), "below minimum")
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"country": "Nowhere"}), "unknown country")
	assert.ErrorContains(t, v.Validate(ctx, core.Record{"debug": true}), "forbidden field present")
}

func TestGate(t *testing.T) {
	gate := Gate(SourceValidator())

	out, err := gate.Transform(context.Background(), rawRecord())
	require.NoError(t, err)
	assert.Equal(t, rawRecord(), out)

	_, err = gate.Transform(context.Background(), core.Record{})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}
