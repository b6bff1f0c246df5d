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
	"fmt"
	"strings"

	"github.com/aaronlmathis/mobility/core"
)

// Package transform provides small record reshaping steps used ahead of the
// mobility cleaning rules: projection, header renaming and whitespace/empty
// value normalization for text sources such as CSV and JSON lines.
//
// All functions return core.Transformer implementations. None of them modify
// the input record.

// Select keeps only the listed fields. Fields missing from the input stay
// missing, so a later validation step can report them. The result is never
// nil, even when no field matches.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename renames fields according to mapping (old name to new name). Renaming
// onto a field that is already present is an error.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			if _, renamed := mapping[key]; !renamed {
				result[key] = value
			}
		}
		for from, to := range mapping {
			value, exists := record[from]
			if !exists {
				continue
			}
			if _, clash := result[to]; clash {
				return nil, fmt.Errorf("rename %s to %s: field already present", from, to)
			}
			result[to] = value
		}
		return result, nil
	})
}

// TrimSpace trims surrounding whitespace from the listed string fields, or
// from every string field when none are listed.
func TrimSpace(fields ...string) core.Transformer {
	return mapStrings(fields, func(s string) interface{} { return strings.TrimSpace(s) })
}

// NullIfEmpty replaces empty strings with nil in the listed fields, or in
// every string field when none are listed. Text sources encode a missing
// value as an empty cell.
func NullIfEmpty(fields ...string) core.Transformer {
	return mapStrings(fields, func(s string) interface{} {
		if s == "" {
			return nil
		}
		return s
	})
}

// RemoveFields drops the listed fields.
func RemoveFields(fields ...string) core.Transformer {
	drop := make(map[string]bool, len(fields))
	for _, field := range fields {
		drop[field] = true
	}
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !drop[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// Chain applies transformers in order and stops at the first one that
// drops the record by returning nil. An empty record is not a drop.
func Chain(transformers ...core.Transformer) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		current := record
		for _, t := range transformers {
			next, err := t.Transform(ctx, current)
			if err != nil || next == nil {
				return nil, err
			}
			current = next
		}
		return current, nil
	})
}

func mapStrings(fields []string, fn func(string) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if len(fields) == 0 {
			for k, v := range record {
				if s, ok := v.(string); ok {
					result[k] = fn(s)
				}
			}
			return result, nil
		}
		for _, field := range fields {
			if s, ok := record[field].(string); ok {
				result[field] = fn(s)
			}
		}
		return result, nil
	})
}
