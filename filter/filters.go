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
	"fmt"
	"reflect"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// Package filter provides composable record predicates. The mobility run uses
// them to restrict output to selected region codes and a date window after
// the cleaning rules have been applied.

// NotNull includes records where field is present, non-nil and not an empty string.
func NotNull(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return false, nil
		}
		if str, ok := value.(string); ok && str == "" {
			return false, nil
		}
		return true, nil
	})
}

// Equals includes records where field equals expected.
func Equals(field string, expected interface{}) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		return exists && reflect.DeepEqual(value, expected), nil
	})
}

// In includes records whose string field is one of values. A nil field never matches.
func In(field string, values ...string) core.Filter {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		str, ok := record[field].(string)
		if !ok {
			return false, nil
		}
		_, found := set[str]
		return found, nil
	})
}

// Between includes records where the integer field lies in [min, max].
// Non-integer values are an error; nil values are excluded.
func Between(field string, min, max int64) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value := record[field]
		if value == nil {
			return false, nil
		}
		n, err := toInt64(value)
		if err != nil {
			return false, fmt.Errorf("filter %s: %w", field, err)
		}
		return n >= min && n <= max, nil
	})
}

// DateWindow includes records whose date field falls within [since, until].
// A zero bound is open.
func DateWindow(field string, since, until core.Date) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		var d core.Date
		switch v := record[field].(type) {
		case core.Date:
			d = v
		case time.Time:
			d = core.DateOf(v)
		case nil:
			return false, nil
		default:
			return false, fmt.Errorf("filter %s: expected date, got %T", field, v)
		}
		if !since.IsZero() && d.Before(since) {
			return false, nil
		}
		if !until.IsZero() && d.After(until) {
			return false, nil
		}
		return true, nil
	})
}

// And requires all filters to pass. With no filters it includes everything.
func And(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, f := range filters {
			include, err := f.ShouldInclude(ctx, record)
			if err != nil || !include {
				return false, err
			}
		}
		return true, nil
	})
}

// Or requires at least one filter to pass.
func Or(filters ...core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		for _, f := range filters {
			include, err := f.ShouldInclude(ctx, record)
			if err != nil {
				return false, err
			}
			if include {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates filter.
func Not(filter core.Filter) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		return !include, nil
	})
}

// Custom wraps a plain predicate.
func Custom(predicate func(core.Record) bool) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		return predicate(record), nil
	})
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}
