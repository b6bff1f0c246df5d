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
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// Package validators checks the structure of source records before they are
// decoded: which fields must be present, which must be non-null, and what
// shape each value must have. A failed check marks the record as invalid,
// which stops a fail-fast run.

// ErrInvalidRecord is matched by every ValidationError.
var ErrInvalidRecord = errors.New("invalid record")

// ValidationError reports the field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is makes every ValidationError match ErrInvalidRecord.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// FieldDataType is the expected shape of a field value.
type FieldDataType string

const (
	FieldTypeString FieldDataType = "string"
	// FieldTypeInteger accepts Go integers, integral floats and integer text.
	FieldTypeInteger FieldDataType = "integer"
	// FieldTypeDate accepts core.Date, time.Time and YYYY-MM-DD text.
	FieldTypeDate FieldDataType = "date"
	FieldTypeAny  FieldDataType = "any"
)

// FieldValidator holds the rules for one field. Nil values only have to
// satisfy NotNull; every other rule applies to non-nil values.
type FieldValidator struct {
	DataType      FieldDataType
	NotNull       bool
	Pattern       *regexp.Regexp // String fields only
	MinValue      *int64         // Integer fields only
	MaxValue      *int64         // Integer fields only
	AllowedValues []string       // String fields only
	CustomFunc    func(interface{}) error
}

// RecordValidator implements core.Validator for single records.
type RecordValidator struct {
	RequiredFields  []string
	ForbiddenFields []string
	FieldValidators map[string]FieldValidator
	// fields is the sorted key set of FieldValidators so errors are reported
	// in a stable order.
	fields []string
}

// RecordValidatorOption is a functional option for RecordValidator.
type RecordValidatorOption func(*RecordValidator)

// WithForbiddenFields rejects records carrying any of fields.
func WithForbiddenFields(fields ...string) RecordValidatorOption {
	return func(v *RecordValidator) {
		v.ForbiddenFields = append(v.ForbiddenFields, fields...)
	}
}

// WithFieldValidator sets the rules for one field.
func WithFieldValidator(field string, fv FieldValidator) RecordValidatorOption {
	return func(v *RecordValidator) {
		v.FieldValidators[field] = fv
	}
}

// NewRecordValidator requires every field in required to be present.
func NewRecordValidator(required []string, options ...RecordValidatorOption) *RecordValidator {
	v := &RecordValidator{
		RequiredFields:  append([]string(nil), required...),
		FieldValidators: make(map[string]FieldValidator),
	}
	for _, option := range options {
		option(v)
	}
	for field := range v.FieldValidators {
		v.fields = append(v.fields, field)
	}
	sort.Strings(v.fields)
	return v
}

// Validate implements core.Validator.
func (v *RecordValidator) Validate(ctx context.Context, record core.Record) error {
	for _, field := range v.RequiredFields {
		if _, exists := record[field]; !exists {
			return &ValidationError{Field: field, Err: errors.New("required field missing")}
		}
	}
	for _, field := range v.ForbiddenFields {
		if _, exists := record[field]; exists {
			return &ValidationError{Field: field, Err: errors.New("forbidden field present")}
		}
	}
	for _, field := range v.fields {
		value, exists := record[field]
		if !exists {
			continue
		}
		if err := v.FieldValidators[field].check(value); err != nil {
			return &ValidationError{Field: field, Err: err}
		}
	}
	return nil
}

func (fv FieldValidator) check(value interface{}) error {
	if value == nil {
		if fv.NotNull {
			return errors.New("value is null")
		}
		return nil
	}

	switch fv.DataType {
	case FieldTypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if fv.NotNull && strings.TrimSpace(s) == "" {
			return errors.New("value is empty")
		}
		if fv.Pattern != nil && !fv.Pattern.MatchString(s) {
			return fmt.Errorf("value %q does not match %s", s, fv.Pattern)
		}
		if len(fv.AllowedValues) > 0 && !contains(fv.AllowedValues, s) {
			return fmt.Errorf("value %q not in allowed values", s)
		}
	case FieldTypeInteger:
		n, isNull, err := asInteger(value)
		if err != nil {
			return err
		}
		if isNull {
			if fv.NotNull {
				return errors.New("value is empty")
			}
			return nil
		}
		if fv.MinValue != nil && n < *fv.MinValue {
			return fmt.Errorf("value %d below minimum %d", n, *fv.MinValue)
		}
		if fv.MaxValue != nil && n > *fv.MaxValue {
			return fmt.Errorf("value %d above maximum %d", n, *fv.MaxValue)
		}
	case FieldTypeDate:
		if err := checkDate(value); err != nil {
			return err
		}
	case FieldTypeAny, "":
	default:
		return fmt.Errorf("unknown data type %q", fv.DataType)
	}

	if fv.CustomFunc != nil {
		return fv.CustomFunc(value)
	}
	return nil
}

// asInteger reports the integer value. Blank text counts as null.
func asInteger(value interface{}) (n int64, isNull bool, err error) {
	switch v := value.(type) {
	case int:
		return int64(v), false, nil
	case int32:
		return int64(v), false, nil
	case int64:
		return v, false, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false, fmt.Errorf("non-integral value %v", v)
		}
		return int64(v), false, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid integer %q", v)
		}
		return i, false, nil
	default:
		return 0, false, fmt.Errorf("expected integer, got %T", value)
	}
}

func checkDate(value interface{}) error {
	switch v := value.(type) {
	case core.Date, time.Time:
		return nil
	case string:
		_, err := core.ParseDate(strings.TrimSpace(v))
		return err
	default:
		return fmt.Errorf("expected date, got %T", value)
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// Gate runs v as a pass-through transformer, so validation can be placed
// after steps that rename or project fields.
func Gate(v core.Validator) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		if err := v.Validate(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	})
}
