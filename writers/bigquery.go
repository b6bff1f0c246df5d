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
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/aaronlmathis/mobility/core"
)

// BigQueryWriterError wraps BigQuery load failures.
type BigQueryWriterError struct {
	Op  string
	Err error
}

func (e *BigQueryWriterError) Error() string {
	return fmt.Sprintf("bigquery writer %s: %v", e.Op, e.Err)
}

func (e *BigQueryWriterError) Unwrap() error {
	return e.Err
}

// BigQueryWriterStats holds BigQuery load statistics.
type BigQueryWriterStats struct {
	RecordsWritten int64
	BytesStaged    int64
	JobID          string
	LoadDuration   time.Duration
	Committed      bool
}

// BigQueryWriterOptions configures the BigQuery writer.
type BigQueryWriterOptions struct {
	ProjectID       string
	Location        string
	Dataset         string
	Table           string
	Columns         core.Schema
	CredentialsFile string
	Client          *bigquery.Client // Existing client; the writer does not close it
	ClientOptions   []option.ClientOption
}

// WriterOptionBigQuery is a functional option for BigQueryWriterOptions.
type WriterOptionBigQuery func(*BigQueryWriterOptions)

func WithBigQueryProject(projectID string) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.ProjectID = projectID }
}

func WithBigQueryLocation(location string) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.Location = location }
}

// WithBigQueryTable sets the destination dataset and table.
func WithBigQueryTable(dataset, table string) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) {
		opts.Dataset = dataset
		opts.Table = table
	}
}

func WithBigQueryColumns(columns core.Schema) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.Columns = append(core.Schema(nil), columns...) }
}

func WithBigQueryCredentialsFile(path string) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.CredentialsFile = path }
}

func WithBigQueryClient(client *bigquery.Client) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.Client = client }
}

func WithBigQueryClientOptions(options ...option.ClientOption) WriterOptionBigQuery {
	return func(opts *BigQueryWriterOptions) { opts.ClientOptions = append(opts.ClientOptions, options...) }
}

// BigQuerySchema converts a table schema to its BigQuery form.
func BigQuerySchema(schema core.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(schema))
	for i, f := range schema {
		ft := bigquery.StringFieldType
		switch f.Type {
		case core.TypeInteger:
			ft = bigquery.IntegerFieldType
		case core.TypeDate:
			ft = bigquery.DateFieldType
		}
		out[i] = &bigquery.FieldSchema{Name: f.Name, Type: ft, Required: f.Required}
	}
	return out
}

// loadFunc runs one truncate-and-replace load of newline-delimited JSON.
type loadFunc func(ctx context.Context, data []byte) (jobID string, err error)

// BigQueryWriter stages records as newline-delimited JSON and publishes them
// with a single load job (CreateIfNeeded, WriteTruncate) on Commit. BigQuery
// applies the job atomically, so the table only changes if the job succeeds.
// The whole load is buffered in memory until Commit, so a full-mode run holds
// the complete cleaned dataset in RAM; table.batch_size does not apply.
// It implements core.TransactionalSink.
type BigQueryWriter struct {
	mu       sync.Mutex
	client   *bigquery.Client
	owns     bool
	buf      bytes.Buffer
	encoder  *JSONWriter
	load     loadFunc
	stats    BigQueryWriterStats
	finished bool
}

// NewBigQueryWriter creates the client (unless one is supplied) and an empty staging buffer.
func NewBigQueryWriter(ctx context.Context, options ...WriterOptionBigQuery) (*BigQueryWriter, error) {
	opts := &BigQueryWriterOptions{}
	for _, option := range options {
		option(opts)
	}
	if opts.Dataset == "" || opts.Table == "" {
		return nil, &BigQueryWriterError{Op: "validate", Err: errors.New("dataset and table are required")}
	}
	if len(opts.Columns) == 0 {
		return nil, &BigQueryWriterError{Op: "validate", Err: errors.New("columns are required")}
	}

	client, owns := opts.Client, false
	if client == nil {
		if opts.ProjectID == "" {
			return nil, &BigQueryWriterError{Op: "validate", Err: errors.New("project id is required")}
		}
		clientOpts := opts.ClientOptions
		if opts.CredentialsFile != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
		}
		var err error
		client, err = bigquery.NewClient(ctx, opts.ProjectID, clientOpts...)
		if err != nil {
			return nil, &BigQueryWriterError{Op: "connect", Err: err}
		}
		owns = true
	}
	if opts.Location != "" {
		client.Location = opts.Location
	}

	schema := BigQuerySchema(opts.Columns)
	table := client.Dataset(opts.Dataset).Table(opts.Table)
	w := newBigQueryWriter(opts.Columns, func(ctx context.Context, data []byte) (string, error) {
		source := bigquery.NewReaderSource(bytes.NewReader(data))
		source.SourceFormat = bigquery.JSON
		source.Schema = schema

		loader := table.LoaderFrom(source)
		loader.CreateDisposition = bigquery.CreateIfNeeded
		loader.WriteDisposition = bigquery.WriteTruncate

		job, err := loader.Run(ctx)
		if err != nil {
			return "", err
		}
		status, err := job.Wait(ctx)
		if err != nil {
			return job.ID(), err
		}
		return job.ID(), status.Err()
	})
	w.client, w.owns = client, owns
	return w, nil
}

func newBigQueryWriter(columns core.Schema, load loadFunc) *BigQueryWriter {
	w := &BigQueryWriter{load: load}
	w.encoder = NewJSONWriter(&w.buf, WithJSONFields(columns.Columns()))
	return w
}

// Stats returns the load statistics.
func (w *BigQueryWriter) Stats() BigQueryWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Write implements the core.DataSink interface.
func (w *BigQueryWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &BigQueryWriterError{Op: "write", Err: ErrSinkFinished}
	}
	if err := w.encoder.Write(ctx, record); err != nil {
		return &BigQueryWriterError{Op: "encode", Err: err}
	}
	w.stats.RecordsWritten++
	return nil
}

// Flush implements the core.DataSink interface.
func (w *BigQueryWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return nil
	}
	if err := w.encoder.Flush(); err != nil {
		return &BigQueryWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Commit runs the load job and waits for it to finish.
func (w *BigQueryWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &BigQueryWriterError{Op: "commit", Err: ErrSinkFinished}
	}
	if err := w.encoder.Flush(); err != nil {
		return &BigQueryWriterError{Op: "flush", Err: err}
	}
	w.finished = true
	w.stats.BytesStaged = int64(w.buf.Len())

	start := time.Now()
	jobID, err := w.load(ctx, w.buf.Bytes())
	w.stats.JobID = jobID
	w.stats.LoadDuration = time.Since(start)
	w.buf.Reset()
	if err != nil {
		return &BigQueryWriterError{Op: "load", Err: err}
	}
	w.stats.Committed = true
	return nil
}

// Abort discards the staged rows.
func (w *BigQueryWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.finished = true
	w.buf.Reset()
	return nil
}

// Close discards uncommitted rows and closes an owned client.
func (w *BigQueryWriter) Close() error {
	w.Abort()
	if w.owns && w.client != nil {
		err := w.client.Close()
		w.client = nil
		return err
	}
	return nil
}
