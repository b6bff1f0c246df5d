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

package writers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aaronlmathis/mobility/core"
)

// Format selects the encoding of an object sink.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts jsonl (or json), csv and parquet, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", s)
	}
}

// ContentType returns the MIME type recorded on cloud objects.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/x-ndjson"
	}
}

// ObjectSinkError wraps object sink failures.
type ObjectSinkError struct {
	Op       string
	Location string
	Err      error
}

func (e *ObjectSinkError) Error() string {
	return fmt.Sprintf("object sink %s [%s]: %v", e.Op, e.Location, e.Err)
}

func (e *ObjectSinkError) Unwrap() error {
	return e.Err
}

// ErrSinkFinished is returned by writes after Commit or Abort.
var ErrSinkFinished = errors.New("sink already committed or aborted")

// ObjectSink encodes records into a staged object and publishes the object
// on Commit. It implements core.TransactionalSink.
type ObjectSink struct {
	mu       sync.Mutex
	encoder  core.DataSink
	object   StagedObject
	location string
	format   Format
	records  int64
	finished bool
}

// NewObjectSink stages an object at loc and encodes records into it. The
// schema fixes the columns and their order for every format.
func NewObjectSink(ctx context.Context, loc Location, format Format, schema core.Schema) (*ObjectSink, error) {
	object, err := loc.Stage(ctx)
	if err != nil {
		return nil, err
	}

	var encoder core.DataSink
	switch format {
	case FormatJSONL:
		encoder = NewJSONWriter(object, WithJSONFields(schema.Columns()))
	case FormatCSV:
		encoder, err = NewCSVWriter(object, WithHeaders(schema.Columns()))
	case FormatParquet:
		encoder, err = NewParquetWriter(object, WithParquetSchema(schema))
	default:
		err = fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		object.Abort()
		return nil, &ObjectSinkError{Op: "create_encoder", Location: loc.String(), Err: err}
	}

	return &ObjectSink{
		encoder:  encoder,
		object:   object,
		location: loc.String(),
		format:   format,
	}, nil
}

// Location returns the URI the object is published to.
func (o *ObjectSink) Location() string {
	return o.location
}

// Records returns the number of records written so far.
func (o *ObjectSink) Records() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.records
}

// Write implements the core.DataSink interface.
func (o *ObjectSink) Write(ctx context.Context, record core.Record) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished {
		return &ObjectSinkError{Op: "write", Location: o.location, Err: ErrSinkFinished}
	}
	if err := o.encoder.Write(ctx, record); err != nil {
		return &ObjectSinkError{Op: "write", Location: o.location, Err: err}
	}
	o.records++
	return nil
}

// Flush implements the core.DataSink interface.
func (o *ObjectSink) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished {
		return nil
	}
	if err := o.encoder.Flush(); err != nil {
		return &ObjectSinkError{Op: "flush", Location: o.location, Err: err}
	}
	return nil
}

// Commit finalises the encoding and publishes the object.
func (o *ObjectSink) Commit(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished {
		return &ObjectSinkError{Op: "commit", Location: o.location, Err: ErrSinkFinished}
	}
	if err := o.encoder.Close(); err != nil {
		o.finished = true
		o.object.Abort()
		return &ObjectSinkError{Op: "finalize", Location: o.location, Err: err}
	}
	o.finished = true
	if err := o.object.Commit(ctx); err != nil {
		return &ObjectSinkError{Op: "commit", Location: o.location, Err: err}
	}
	return nil
}

// Abort discards the staged object. It is a no-op after Commit.
func (o *ObjectSink) Abort() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.finished {
		return nil
	}
	o.finished = true
	return o.object.Abort()
}

// Close discards the object if it was never committed.
func (o *ObjectSink) Close() error {
	return o.Abort()
}
