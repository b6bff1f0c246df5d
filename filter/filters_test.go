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

package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/mobility/core"
)

func include(t *testing.T, f core.Filter, record core.Record) bool {
	t.Helper()
	ok, err := f.ShouldInclude(context.Background(), record)
	require.NoError(t, err)
	return ok
}

func date(day int) core.Date {
	return core.Date{Year: 2020, Month: time.March, Day: day}
}

func TestNotNull(t *testing.T) {
	f := NotNull("code")
	assert.True(t, include(t, f, core.Record{"code": "EL"}))
	assert.False(t, include(t, f, core.Record{"code": nil}))
	assert.False(t, include(t, f, core.Record{"code": ""}))
	assert.False(t, include(t, f, core.Record{}))
}

func TestEquals(t *testing.T) {
	f := Equals("average_change", int64(-2))
	assert.True(t, include(t, f, core.Record{"average_change": int64(-2)}))
	assert.False(t, include(t, f, core.Record{"average_change": -2}), "types must match")
}

func TestIn(t *testing.T) {
	f := In("code", "EL", "UK")
	assert.True(t, include(t, f, core.Record{"code": "UK"}))
	assert.False(t, include(t, f, core.Record{"code": "GB"}))
	assert.False(t, include(t, f, core.Record{"code": nil}))
}

func TestBetween(t *testing.T) {
	f := Between("average_change", -10, 10)
	assert.True(t, include(t, f, core.Record{"average_change": int64(10)}))
	assert.True(t, include(t, f, core.Record{"average_change": -10}))
	assert.False(t, include(t, f, core.Record{"average_change": int64(11)}))
	assert.False(t, include(t, f, core.Record{"average_change": nil}))

	_, err := f.ShouldInclude(context.Background(), core.Record{"average_change": "3"})
	assert.Error(t, err)
}

func TestDateWindow(t *testing.T) {
	tests := []struct {
		name     string
		since    core.Date
		until    core.Date
		value    interface{}
		expected bool
	}{
		{"inside", date(1), date(31), date(15), true},
		{"inclusive start", date(15), date(31), date(15), true},
		{"inclusive end", date(1), date(15), date(15), true},
		{"before", date(16), core.Date{}, date(15), false},
		{"after", core.Date{}, date(14), date(15), false},
		{"open", core.Date{}, core.Date{}, date(15), true},
		{"time value", date(15), date(15), time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), true},
		{"nil", core.Date{}, core.Date{}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DateWindow("date", tt.since, tt.until)
			assert.Equal(t, tt.expected, include(t, f, core.Record{"date": tt.value}))
		})
	}

	_, err := DateWindow("date", core.Date{}, core.Date{}).ShouldInclude(context.Background(), core.Record{"date": "2020-03-15"})
	assert.Error(t, err)
}

func TestCombinators(t *testing.T) {
	isEL := In("code", "EL")
	positive := Custom(func(r core.Record) bool { return r["average_change"].(int64) > 0 })
	record := core.Record{"code": "EL", "average_change": int64(-4)}

	assert.False(t, include(t, And(isEL, positive), record))
	assert.True(t, include(t, Or(isEL, positive), record))
	assert.True(t, include(t, Not(positive), record))
	assert.True(t, include(t, And(), record))
	assert.False(t, include(t, Or(), record))
}
