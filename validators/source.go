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
	"github.com/aaronlmathis/mobility/mobility"
)

// SourceValidator checks a raw mobility record: every source column is
// present, country_region and date are non-null, and the six changes are
// integers or null.
func SourceValidator() *RecordValidator {
	options := []RecordValidatorOption{
		WithFieldValidator(mobility.ColCountryRegionCode, FieldValidator{DataType: FieldTypeString}),
		WithFieldValidator(mobility.ColCountryRegion, FieldValidator{DataType: FieldTypeString, NotNull: true}),
		WithFieldValidator(mobility.ColDate, FieldValidator{DataType: FieldTypeDate, NotNull: true}),
	}
	for _, category := range mobility.Categories {
		options = append(options, WithFieldValidator(category+mobility.SourceSuffix, FieldValidator{DataType: FieldTypeInteger}))
	}
	return NewRecordValidator(mobility.SourceColumns(), options...)
}
