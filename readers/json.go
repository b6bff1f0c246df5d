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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/mobility/core"
)

// JSONReaderError wraps structured error information for the JSON lines reader.
type JSONReaderError struct {
	Op   string
	Line int64
	Err  error
}

func (e *JSONReaderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("json reader %s (line %d): %v", e.Op, e.Line, e.Err)
	}
	return fmt.Sprintf("json reader %s: %v", e.Op, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// ReaderOptionJSON allows functional customization of JSONReader.
type ReaderOptionJSON func(*JSONReader)

// WithJSONMaxLineSize raises the longest line the reader accepts.
func WithJSONMaxLineSize(n int) ReaderOptionJSON {
	return func(j *JSONReader) { j.maxLine = n }
}

// JSONReader implements DataSource for line-delimited JSON.
// Blank lines are skipped. Numbers decode as float64.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	maxLine int
	line    int64
}

// NewJSONReader creates a new JSON reader for line-delimited JSON.
func NewJSONReader(r io.ReadCloser, options ...ReaderOptionJSON) *JSONReader {
	j := &JSONReader{
		closer:  r,
		maxLine: 1024 * 1024,
	}
	for _, opt := range options {
		opt(j)
	}
	j.scanner = bufio.NewScanner(r)
	j.scanner.Buffer(make([]byte, 0, min(64*1024, j.maxLine)), j.maxLine)
	return j
}

// Read implements the DataSource interface.
func (j *JSONReader) Read(ctx context.Context) (core.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, &JSONReaderError{Op: "read", Err: err}
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, &JSONReaderError{Op: "scan", Line: j.line + 1, Err: err}
			}
			return nil, io.EOF
		}
		j.line++

		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record core.Record
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, &JSONReaderError{Op: "unmarshal", Line: j.line, Err: err}
		}
		if record == nil {
			return nil, &JSONReaderError{Op: "unmarshal", Line: j.line, Err: errors.New("line is not a JSON object")}
		}
		return record, nil
	}
}

// Close implements the DataSource interface.
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
