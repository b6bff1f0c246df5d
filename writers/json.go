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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// JSONWriterError wraps JSON-lines write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriterStats holds JSON write statistics.
type JSONWriterStats struct {
	RecordsWritten  int64
	BytesWritten    int64
	FlushCount      int64
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// JSONWriterOptions configures JSON-lines output.
type JSONWriterOptions struct {
	// Fields fixes the keys written and their order. Missing fields are
	// written as null and fields not listed are dropped. When empty, every
	// key is written in sorted order.
	Fields     []string
	EscapeHTML bool
}

// WriterOptionJSON is a functional option for JSONWriterOptions.
type WriterOptionJSON func(*JSONWriterOptions)

// WithJSONFields fixes the output keys and their order.
func WithJSONFields(fields []string) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.Fields = append([]string(nil), fields...)
	}
}

// WithJSONEscapeHTML escapes <, > and & inside strings.
func WithJSONEscapeHTML(escape bool) WriterOptionJSON {
	return func(opts *JSONWriterOptions) {
		opts.EscapeHTML = escape
	}
}

// JSONWriter implements DataSink for line-delimited JSON. Each record is one
// object on its own line.
type JSONWriter struct {
	mu      sync.Mutex
	writer  *bufio.Writer
	closer  io.Closer
	options JSONWriterOptions
	line    bytes.Buffer
	scratch bytes.Buffer
	encoder *json.Encoder
	stats   JSONWriterStats
}

// NewJSONWriter creates a JSON-lines writer. If w is an io.Closer it is closed
// by Close.
func NewJSONWriter(w io.Writer, opts ...WriterOptionJSON) *JSONWriter {
	options := JSONWriterOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	j := &JSONWriter{
		writer:  bufio.NewWriter(w),
		options: options,
		stats:   JSONWriterStats{NullValueCounts: make(map[string]int64)},
	}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	j.encoder = json.NewEncoder(&j.scratch)
	j.encoder.SetEscapeHTML(options.EscapeHTML)
	return j
}

// Write implements the DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, record core.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.line.Reset()
	if len(j.options.Fields) == 0 {
		if err := j.encodeValue(map[string]interface{}(record)); err != nil {
			return &JSONWriterError{Op: "marshal", Err: err}
		}
	} else {
		j.line.WriteByte('{')
		for i, field := range j.options.Fields {
			if i > 0 {
				j.line.WriteByte(',')
			}
			if err := j.encodeValue(field); err != nil {
				return &JSONWriterError{Op: "marshal", Err: err}
			}
			j.line.WriteByte(':')
			if err := j.encodeValue(record[field]); err != nil {
				return &JSONWriterError{Op: "marshal", Err: fmt.Errorf("field %s: %w", field, err)}
			}
		}
		j.line.WriteByte('}')
	}
	j.line.WriteByte('\n')

	for k, v := range record {
		if v == nil {
			j.stats.NullValueCounts[k]++
		}
	}

	n, err := j.writer.Write(j.line.Bytes())
	j.stats.BytesWritten += int64(n)
	if err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}
	j.stats.RecordsWritten++
	return nil
}

// encodeValue appends the JSON encoding of v to the current line.
func (j *JSONWriter) encodeValue(v interface{}) error {
	j.scratch.Reset()
	if err := j.encoder.Encode(v); err != nil {
		return err
	}
	j.line.Write(bytes.TrimRight(j.scratch.Bytes(), "\n"))
	return nil
}

// Flush implements the DataSink interface.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return &JSONWriterError{Op: "flush", Err: err}
	}
	j.stats.FlushCount++
	j.stats.LastFlushTime = time.Now()
	return nil
}

// Close implements the DataSink interface.
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// Stats returns write statistics.
func (j *JSONWriter) Stats() JSONWriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()

	statsCopy := j.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(j.stats.NullValueCounts))
	for k, v := range j.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}
