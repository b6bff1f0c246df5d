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
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/aaronlmathis/mobility/core"
)

// BigQueryReaderError provides structured error information for BigQuery reader operations
type BigQueryReaderError struct {
	Op  string
	Err error
}

func (e *BigQueryReaderError) Error() string {
	return fmt.Sprintf("bigquery reader %s: %v", e.Op, e.Err)
}

func (e *BigQueryReaderError) Unwrap() error {
	return e.Err
}

// BigQueryReaderStats holds statistics about the BigQuery reader
type BigQueryReaderStats struct {
	RecordsRead   int64
	TotalRows     uint64
	QueryDuration time.Duration
	ReadDuration  time.Duration
}

// BigQueryReaderOptions configures the BigQuery reader
type BigQueryReaderOptions struct {
	ProjectID       string
	Location        string
	Query           string
	CredentialsFile string
	Client          *bigquery.Client // Existing client; the reader does not close it
	ClientOptions   []option.ClientOption
}

// ReaderOptionBigQuery is a functional option for BigQueryReaderOptions
type ReaderOptionBigQuery func(*BigQueryReaderOptions)

func WithBigQueryProject(projectID string) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.ProjectID = projectID }
}

func WithBigQueryLocation(location string) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.Location = location }
}

func WithBigQueryQuery(query string) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.Query = query }
}

func WithBigQueryCredentialsFile(path string) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.CredentialsFile = path }
}

func WithBigQueryClient(client *bigquery.Client) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.Client = client }
}

func WithBigQueryClientOptions(options ...option.ClientOption) ReaderOptionBigQuery {
	return func(opts *BigQueryReaderOptions) { opts.ClientOptions = append(opts.ClientOptions, options...) }
}

// bigQueryRows is the part of *bigquery.RowIterator the reader consumes.
type bigQueryRows interface {
	Next(dst interface{}) error
}

// BigQueryReader implements core.DataSource over the result of a standard SQL query.
type BigQueryReader struct {
	mu     sync.Mutex
	client *bigquery.Client
	owns   bool
	rows   bigQueryRows
	stats  BigQueryReaderStats
	done   bool
}

// NewBigQueryReader runs the query and returns a reader over its result rows.
func NewBigQueryReader(ctx context.Context, options ...ReaderOptionBigQuery) (*BigQueryReader, error) {
	opts := &BigQueryReaderOptions{}
	for _, option := range options {
		option(opts)
	}
	if opts.Query == "" {
		return nil, &BigQueryReaderError{Op: "validate", Err: errors.New("query is required")}
	}

	client, owns := opts.Client, false
	if client == nil {
		if opts.ProjectID == "" {
			return nil, &BigQueryReaderError{Op: "validate", Err: errors.New("project id is required")}
		}
		clientOpts := opts.ClientOptions
		if opts.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		}
		var err error
		client, err = bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
		if err != nil {
			return nil, &BigQueryReaderError{Op: "connect", Err: err}
		}
		owns = true
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}

	start := time.Now()
	it, err := client.Query(opts.Query).Read(ctx)
	if err != nil {
		if owns {
			client.Close()
		}
		return nil, &BigQueryReaderError{Op: "query", Err: err}
	}

	reader := newBigQueryReader(it)
	reader.client, reader.owns = client, owns
	reader.stats.QueryDuration = time.Since(start)
	reader.stats.TotalRows = it.TotalRows
	return reader, nil
}

func newBigQueryReader(rows bigQueryRows) *BigQueryReader {
	return &BigQueryReader{rows: rows}
}

// Read implements the core.DataSource interface
func (b *BigQueryReader) Read(ctx context.Context) (core.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	defer func() { b.stats.ReadDuration += time.Since(start) }()

	if err := ctx.Err(); err != nil {
		return nil, &BigQueryReaderError{Op: "read", Err: err}
	}
	if b.done || b.rows == nil {
		return nil, io.EOF
	}

	var row map[string]bigquery.Value
	err := b.rows.Next(&row)
	if errors.Is(err, iterator.Done) {
		b.done = true
		return nil, io.EOF
	}
	if err != nil {
		return nil, &BigQueryReaderError{Op: "read", Err: err}
	}

	record := make(core.Record, len(row))
	for k, v := range row {
		record[k] = convertBigQueryValue(v)
	}
	b.stats.RecordsRead++
	return record, nil
}

// Close implements the core.DataSource interface
func (b *BigQueryReader) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = nil
	if b.client != nil && b.owns {
		err := b.client.Close()
		b.client = nil
		if err != nil {
			return &BigQueryReaderError{Op: "close", Err: err}
		}
	}
	return nil
}

// Stats returns reader statistics.
func (b *BigQueryReader) Stats() BigQueryReaderStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func convertBigQueryValue(v bigquery.Value) interface{} {
	switch t := v.(type) {
	case civil.Date:
		return core.Date{Year: t.Year, Month: t.Month, Day: t.Day}
	case civil.DateTime:
		return t.In(time.UTC)
	default:
		return v
	}
}
