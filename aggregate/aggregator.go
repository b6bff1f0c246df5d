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

package aggregate

import (
	"github.com/aaronlmathis/mobility/core"
)

// Package aggregate computes per-group summaries of the records flowing into
// a pipeline sink. The mobility run uses it to report, per region code, how
// many rows were published and the range of average_change.

// Aggregator folds records into a single value.
type Aggregator interface {
	// Add folds one record into the aggregate.
	Add(record core.Record) error
	// Result returns the aggregate so far. It is nil when nothing was added.
	Result() interface{}
	// Reset clears the state for reuse.
	Reset()
	// Clone returns an empty aggregator with the same configuration.
	Clone() Aggregator
}
