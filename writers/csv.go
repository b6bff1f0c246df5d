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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterStats holds CSV write performance statistics.
type CSVWriterStats struct {
	RecordsWritten  int64
	FlushCount      int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
	Headers     []string
	BatchSize   int
	NullValue   string
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

// WithHeaders fixes the columns written and their order.
func WithHeaders(headers []string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Headers = append([]string(nil), headers...)
	}
}

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithCSVBatchSize(size int) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.BatchSize = size
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

// WithCSVNullValue sets the text written for nil values. The default is empty.
func WithCSVNullValue(null string) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.NullValue = null
	}
}

// CSVWriter encodes records as CSV rows. Rows are rendered when written and
// buffered until BatchSize is reached or Flush is called.
type CSVWriter struct {
	mu      sync.Mutex
	writer  *csv.Writer
	closer  io.Closer
	options CSVWriterOptions
	columns []string
	pending [][]string
	stats   CSVWriterStats
	header  bool // header row already emitted
	failed  bool
}

// NewCSVWriter creates a CSV writer. When no headers are configured the
// columns of the first record are used, sorted by name. If w is an
// io.Closer it is closed by Close.
func NewCSVWriter(w io.Writer, opts ...WriterOptionCSV) (*CSVWriter, error) {
	options := CSVWriterOptions{Comma: ',', WriteHeader: true}
	for _, opt := range opts {
		opt(&options)
	}

	if options.Comma == '"' || options.Comma == '\r' || options.Comma == '\n' {
		return nil, &CSVWriterError{Op: "configure", Err: fmt.Errorf("invalid delimiter %q", options.Comma)}
	}
	enc := csv.NewWriter(w)
	enc.Comma = options.Comma
	enc.UseCRLF = options.UseCRLF

	c := &CSVWriter{
		writer:  enc,
		options: options,
		columns: options.Headers,
		stats:   CSVWriterStats{NullValueCounts: make(map[string]int64)},
	}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c, nil
}

// Write implements the DataSink interface.
func (c *CSVWriter) Write(ctx context.Context, record core.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed {
		return &CSVWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}
	if c.columns == nil {
		c.columns = sortedKeys(record)
	}

	row := make([]string, len(c.columns))
	for i, col := range c.columns {
		v := record[col]
		if v == nil {
			c.stats.NullValueCounts[col]++
			row[i] = c.options.NullValue
			continue
		}
		row[i] = formatCSVValue(v)
	}
	c.pending = append(c.pending, row)
	c.stats.RecordsWritten++

	if c.options.BatchSize > 0 && len(c.pending) >= c.options.BatchSize {
		if err := c.drainUnsafe(); err != nil {
			c.failed = true
			return &CSVWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush implements the DataSink interface. A known header is written even
// when no record was.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.drainUnsafe(); err != nil {
		c.failed = true
		return &CSVWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Close flushes and closes the underlying writer when it is an io.Closer.
func (c *CSVWriter) Close() error {
	if err := c.Flush(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// drainUnsafe emits the header, if due, and every pending row, then flushes
// the csv encoder. The caller holds the mutex.
func (c *CSVWriter) drainUnsafe() error {
	start := time.Now()

	if !c.header && c.options.WriteHeader && len(c.columns) > 0 {
		if err := c.writer.Write(c.columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		c.header = true
	}
	if err := c.writer.WriteAll(c.pending); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	if len(c.pending) > 0 {
		c.stats.FlushCount++
		c.stats.LastFlushTime = time.Now()
		c.stats.FlushDuration += time.Since(start)
	}
	c.pending = c.pending[:0]
	return nil
}

// formatCSVValue renders the value types produced by the readers and the
// cleaning step.
func formatCSVValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case core.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys(record core.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a snapshot of the write statistics.
func (c *CSVWriter) Stats() CSVWriterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}
