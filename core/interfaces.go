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

package core

import (
	"context"
)

// Package core defines the interfaces shared by every reader, writer and
// pipeline stage in GoETL Mobility.

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., PostgreSQL, BigQuery, CSV).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., a log object, a table).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is handed to the destination.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// TransactionalSink is a DataSink whose output only becomes visible on Commit.
// Until Commit returns nil, readers of the destination keep observing its
// previous state. Abort discards everything written since the sink was opened.
type TransactionalSink interface {
	DataSink
	// Commit publishes all written records atomically.
	Commit(ctx context.Context) error
	// Abort discards all written records. It is safe to call after a failed Commit.
	Abort() error
}

// Transformer defines the interface for data transformation operations.
// A transformer returning a nil record drops it from the pipeline.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// Filter defines the interface for record filtering.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}

// Validator checks the structure of a record before it is transformed.
// A non-nil error marks the record as malformed.
type Validator interface {
	Validate(ctx context.Context, record Record) error
}
