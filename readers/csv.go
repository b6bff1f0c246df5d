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

package readers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// CSVReaderError wraps structured error information for the CSV reader.
type CSVReaderError struct {
	Op  string
	Err error
}

func (e *CSVReaderError) Error() string {
	return fmt.Sprintf("csv reader %s: %v", e.Op, e.Err)
}

func (e *CSVReaderError) Unwrap() error {
	return e.Err
}

// CSVReaderStats holds statistics about the CSV reader's performance.
type CSVReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// CSVReaderOptions configures the CSV reader.
type CSVReaderOptions struct {
	Comma            rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	HasHeaders       bool
	// NullValues are the cell values read as nil. The empty string is always null.
	NullValues []string
	// InferTypes converts numeric and boolean cells. Otherwise every cell is a string.
	InferTypes bool
}

// ReaderOptionCSV allows functional customization of CSVReader.
type ReaderOptionCSV func(*CSVReaderOptions)

func WithCSVComma(r rune) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.Comma = r }
}

func WithCSVHasHeaders(hasHeaders bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.HasHeaders = hasHeaders }
}

func WithCSVTrimSpace(trim bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.TrimLeadingSpace = trim }
}

// WithCSVNullValues adds cell values that are read as nil.
// "NA" is a valid region code (Namibia), so it is not null by default.
func WithCSVNullValues(values ...string) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.NullValues = append(o.NullValues, values...) }
}

func WithCSVInferTypes(infer bool) ReaderOptionCSV {
	return func(o *CSVReaderOptions) { o.InferTypes = infer }
}

// CSVReader implements DataSource for CSV files.
type CSVReader struct {
	reader  *csv.Reader
	headers []string
	closer  io.Closer
	nulls   map[string]struct{}
	stats   CSVReaderStats
	opts    CSVReaderOptions
}

// NewCSVReader creates a CSVReader with default or overridden options.
func NewCSVReader(r io.ReadCloser, options ...ReaderOptionCSV) (*CSVReader, error) {
	opts := CSVReaderOptions{
		Comma:            ',',
		HasHeaders:       true,
		TrimLeadingSpace: true,
	}

	for _, opt := range options {
		opt(&opts)
	}

	csvReader := csv.NewReader(r)
	csvReader.Comma = opts.Comma
	csvReader.Comment = opts.Comment
	csvReader.LazyQuotes = opts.LazyQuotes
	csvReader.TrimLeadingSpace = opts.TrimLeadingSpace
	csvReader.ReuseRecord = true

	reader := &CSVReader{
		reader: csvReader,
		closer: r,
		opts:   opts,
		nulls:  map[string]struct{}{"": {}},
		stats:  CSVReaderStats{NullValueCounts: make(map[string]int64)},
	}
	for _, v := range opts.NullValues {
		reader.nulls[v] = struct{}{}
	}

	if opts.HasHeaders {
		headers, err := csvReader.Read()
		if err != nil {
			return nil, &CSVReaderError{Op: "read_headers", Err: err}
		}
		reader.headers = make([]string, len(headers))
		for i, h := range headers {
			reader.headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
		}
	}

	return reader, nil
}

// Headers returns the column names read from the first line.
func (c *CSVReader) Headers() []string {
	return append([]string(nil), c.headers...)
}

// Read implements the DataSource interface.
func (c *CSVReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, &CSVReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	row, err := c.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &CSVReaderError{Op: "read_record", Err: err}
	}

	res := make(core.Record, len(row))
	for i, val := range row {
		key := c.columnName(i)
		trimmed := strings.TrimSpace(val)
		if _, isNull := c.nulls[trimmed]; isNull {
			c.stats.NullValueCounts[key]++
			res[key] = nil
			continue
		}
		res[key] = c.parseValue(trimmed)
	}

	c.stats.RecordsRead++
	c.stats.LastReadTime = time.Now()
	c.stats.ReadDuration += time.Since(start)

	return res, nil
}

func (c *CSVReader) columnName(i int) string {
	if i < len(c.headers) {
		return c.headers[i]
	}
	return "col_" + strconv.Itoa(i)
}

// Close implements the DataSource interface.
func (c *CSVReader) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Stats returns CSV reader performance stats.
func (c *CSVReader) Stats() CSVReaderStats {
	stats := c.stats
	stats.NullValueCounts = make(map[string]int64, len(c.stats.NullValueCounts))
	for k, v := range c.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// parseValue infers int64, float64 or bool when InferTypes is set.
func (c *CSVReader) parseValue(value string) interface{} {
	if !c.opts.InferTypes {
		return value
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
