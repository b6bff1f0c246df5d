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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// ErrMalformedRecord is matched by every error returned from Decode.
var ErrMalformedRecord = errors.New("malformed mobility record")

// DecodeError reports which source field could not be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every DecodeError match ErrMalformedRecord.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Decode converts a source record into a RawRecord. Every source column must
// be present. date and country_region must be non-null; the region code and
// the six changes may be null.
func Decode(rec core.Record) (RawRecord, error) {
	var raw RawRecord

	code, err := optionalString(rec, ColCountryRegionCode)
	if err != nil {
		return RawRecord{}, err
	}
	raw.CountryRegionCode = code

	country, err := optionalString(rec, ColCountryRegion)
	if err != nil {
		return RawRecord{}, err
	}
	if country == nil {
		return RawRecord{}, &DecodeError{Field: ColCountryRegion, Err: errors.New("value is null")}
	}
	raw.CountryRegion = *country

	date, err := requiredDate(rec, ColDate)
	if err != nil {
		return RawRecord{}, err
	}
	raw.Date = date

	for i, category := range Categories {
		col := category + SourceSuffix
		v, ok := rec[col]
		if !ok {
			return RawRecord{}, &DecodeError{Field: col, Err: errors.New("column missing")}
		}
		change, err := toChange(v)
		if err != nil {
			return RawRecord{}, &DecodeError{Field: col, Err: err}
		}
		raw.Changes[i] = change
	}

	return raw, nil
}

func optionalString(rec core.Record, field string) (*string, error) {
	v, ok := rec[field]
	if !ok {
		return nil, &DecodeError{Field: field, Err: errors.New("column missing")}
	}
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &s, nil
	case []byte:
		str := string(s)
		return &str, nil
	default:
		return nil, &DecodeError{Field: field, Err: fmt.Errorf("expected string, got %T", v)}
	}
}

func requiredDate(rec core.Record, field string) (core.Date, error) {
	v, ok := rec[field]
	if !ok {
		return core.Date{}, &DecodeError{Field: field, Err: errors.New("column missing")}
	}
	switch d := v.(type) {
	case nil:
		return core.Date{}, &DecodeError{Field: field, Err: errors.New("value is null")}
	case core.Date:
		return d, nil
	case time.Time:
		return core.DateOf(d), nil
	case string:
		parsed, err := core.ParseDate(strings.TrimSpace(d))
		if err != nil {
			return core.Date{}, &DecodeError{Field: field, Err: err}
		}
		return parsed, nil
	default:
		return core.Date{}, &DecodeError{Field: field, Err: fmt.Errorf("expected date, got %T", v)}
	}
}

// toChange accepts the numeric shapes produced by the readers. JSON numbers
// arrive as float64 and must be integral.
func toChange(v interface{}) (*int64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int:
		return Int64(int64(n)), nil
	case int32:
		return Int64(int64(n)), nil
	case int64:
		return Int64(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return nil, fmt.Errorf("non-integral value %v", n)
		}
		return Int64(int64(n)), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return Int64(i), nil
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
}
