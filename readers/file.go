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
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aaronlmathis/mobility/core"
	"github.com/dsnet/compress/bzip2"
)

// Format identifies the encoding of a file or object source.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// DetectFormat guesses the record format from a file name, ignoring any
// compression suffix. Unknown extensions default to CSV.
func DetectFormat(name string) Format {
	base := strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(name), ".gz"), ".bz2")
	switch filepath.Ext(base) {
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONL
	case ".parquet":
		return FormatParquet
	default:
		return FormatCSV
	}
}

// multiCloser closes a decompressor and its underlying stream.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Decompress wraps rc according to the compression suffix of name:
// ".gz" for gzip and ".bz2" for bzip2. Other names are returned unchanged.
// Closing the result closes rc.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(name, ".gz"):
		gr, err := gzip.NewReader(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &multiCloser{Reader: gr, closers: []io.Closer{gr, rc}}, nil
	case strings.HasSuffix(name, ".bz2"):
		br, err := bzip2.NewReader(rc, nil)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("bzip2 reader: %w", err)
		}
		return &multiCloser{Reader: br, closers: []io.Closer{br, rc}}, nil
	default:
		return rc, nil
	}
}

// NewStreamReader returns a DataSource over rc, decompressing and choosing
// the decoder from name.
func NewStreamReader(name string, rc io.ReadCloser, csvOptions ...ReaderOptionCSV) (core.DataSource, error) {
	stream, err := Decompress(name, rc)
	if err != nil {
		return nil, err
	}
	switch DetectFormat(name) {
	case FormatJSONL:
		return NewJSONReader(stream), nil
	case FormatParquet:
		stream.Close()
		return nil, fmt.Errorf("%s: parquet needs a seekable file", name)
	}
	reader, err := NewCSVReader(stream, csvOptions...)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return reader, nil
}

// NewFileReader opens path and returns a DataSource for its format.
func NewFileReader(path string, csvOptions ...ReaderOptionCSV) (core.DataSource, error) {
	if path != "-" && DetectFormat(path) == FormatParquet {
		reader, err := NewParquetReader(context.Background(), path)
		if err != nil {
			return nil, err
		}
		return reader, nil
	}

	var rc io.ReadCloser
	if path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		rc = f
	}
	return NewStreamReader(path, rc, csvOptions...)
}
