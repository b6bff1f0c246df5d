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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/mobility/core"
)

// MongoWriterError provides structured error information for MongoDB writer operations.
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert", "rename")
	Collection string // Collection being written when the error occurred
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// MongoWriterStats holds MongoDB write statistics.
type MongoWriterStats struct {
	DocumentsWritten  int64
	BatchesWritten    int64
	StagingCollection string
	Committed         bool
	WriteDuration     time.Duration
}

// MongoWriterOptions configures the MongoDB writer.
type MongoWriterOptions struct {
	URI        string        // MongoDB connection URI
	Client     *mongo.Client // Existing client; the writer does not disconnect it
	Database   string        // Database name
	Collection string        // Target collection name
	Columns    core.Schema   // Document fields, in order
	BatchSize  int           // Documents per InsertMany
	Timeout    time.Duration // Connect and cleanup timeout
}

// WriterOptionMongo is a functional option for MongoWriterOptions.
type WriterOptionMongo func(*MongoWriterOptions)

func WithMongoURI(uri string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) { opts.URI = uri }
}

func WithMongoClient(client *mongo.Client) WriterOptionMongo {
	return func(opts *MongoWriterOptions) { opts.Client = client }
}

// WithMongoCollection sets the target database and collection.
func WithMongoCollection(database, collection string) WriterOptionMongo {
	return func(opts *MongoWriterOptions) {
		opts.Database = database
		opts.Collection = collection
	}
}

func WithMongoColumns(columns core.Schema) WriterOptionMongo {
	return func(opts *MongoWriterOptions) { opts.Columns = append(core.Schema(nil), columns...) }
}

func WithMongoBatchSize(size int) WriterOptionMongo {
	return func(opts *MongoWriterOptions) { opts.BatchSize = size }
}

func WithMongoTimeout(timeout time.Duration) WriterOptionMongo {
	return func(opts *MongoWriterOptions) { opts.Timeout = timeout }
}

// MongoWriter replaces the documents of a collection. Documents are inserted
// into a staging collection; Commit renames it over the target with
// dropTarget, which MongoDB performs as a single operation.
// It implements core.TransactionalSink.
type MongoWriter struct {
	mu       sync.Mutex
	client   *mongo.Client
	owns     bool
	opts     *MongoWriterOptions
	columns  []string
	staging  string
	created  bool
	finished bool
	docBuf   []interface{}
	stats    MongoWriterStats
}

// NewMongoWriter connects (unless a client is supplied) and prepares a
// uniquely named staging collection.
func NewMongoWriter(ctx context.Context, options ...WriterOptionMongo) (*MongoWriter, error) {
	opts := &MongoWriterOptions{
		URI:       "mongodb://localhost:27017",
		BatchSize: DefaultTableBatchSize,
		Timeout:   30 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.Database == "" || opts.Collection == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("database and collection are required")}
	}
	if len(opts.Columns) == 0 {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("columns are required")}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultTableBatchSize
	}

	client, owns := opts.Client, false
	if client == nil {
		clientOpts := mongoClientOptions(opts.URI, opts.Timeout)
		var err error
		client, err = mongo.Connect(ctx, clientOpts)
		if err != nil {
			return nil, &MongoWriterError{Op: "connect", Err: err}
		}
		if err := client.Ping(ctx, nil); err != nil {
			client.Disconnect(ctx)
			return nil, &MongoWriterError{Op: "ping", Err: err}
		}
		owns = true
	}

	staging := fmt.Sprintf("%s__stg_%s", opts.Collection, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return &MongoWriter{
		client:  client,
		owns:    owns,
		opts:    opts,
		columns: opts.Columns.Columns(),
		staging: staging,
		docBuf:  make([]interface{}, 0, opts.BatchSize),
		stats:   MongoWriterStats{StagingCollection: staging},
	}, nil
}

func mongoClientOptions(uri string, timeout time.Duration) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		clientOpts.SetConnectTimeout(timeout)
	}
	return clientOpts
}

// toDocument converts a record into an ordered document. Dates are stored as
// BSON dates at midnight UTC and missing fields as null.
func toDocument(record core.Record, columns []string) bson.D {
	doc := make(bson.D, 0, len(columns))
	for _, c := range columns {
		value := record[c]
		if d, ok := value.(core.Date); ok {
			value = d.Time()
		}
		doc = append(doc, bson.E{Key: c, Value: value})
	}
	return doc
}

// Stats returns the write statistics.
func (w *MongoWriter) Stats() MongoWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Write implements the core.DataSink interface.
func (w *MongoWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &MongoWriterError{Op: "write", Collection: w.staging, Err: ErrSinkFinished}
	}
	if err := w.ensureStagingUnsafe(ctx); err != nil {
		return err
	}
	w.docBuf = append(w.docBuf, toDocument(record, w.columns))
	if len(w.docBuf) >= w.opts.BatchSize {
		return w.flushBufferUnsafe(ctx)
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (w *MongoWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()
	return w.flushBufferUnsafe(ctx)
}

// Commit renames the staging collection over the target.
func (w *MongoWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &MongoWriterError{Op: "commit", Collection: w.opts.Collection, Err: ErrSinkFinished}
	}
	if err := w.ensureStagingUnsafe(ctx); err != nil {
		return err
	}
	if err := w.flushBufferUnsafe(ctx); err != nil {
		return err
	}

	db := w.opts.Database
	cmd := bson.D{
		{Key: "renameCollection", Value: db + "." + w.staging},
		{Key: "to", Value: db + "." + w.opts.Collection},
		{Key: "dropTarget", Value: true},
	}
	if err := w.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return &MongoWriterError{Op: "rename", Collection: w.opts.Collection, Err: err}
	}
	w.finished = true
	w.stats.Committed = true
	return nil
}

// Abort drops the staging collection. The target collection is untouched.
func (w *MongoWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.abortUnsafe()
}

func (w *MongoWriter) abortUnsafe() error {
	if w.finished {
		return nil
	}
	w.finished = true
	w.docBuf = w.docBuf[:0]
	if !w.created {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
	defer cancel()
	if err := w.client.Database(w.opts.Database).Collection(w.staging).Drop(ctx); err != nil {
		return &MongoWriterError{Op: "drop_staging", Collection: w.staging, Err: err}
	}
	return nil
}

// Close aborts an uncommitted load and disconnects an owned client.
func (w *MongoWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.abortUnsafe()
	if w.owns && w.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.Timeout)
		defer cancel()
		if derr := w.client.Disconnect(ctx); derr != nil && err == nil {
			err = &MongoWriterError{Op: "disconnect", Err: derr}
		}
		w.client = nil
	}
	return err
}

// ensureStagingUnsafe creates the staging collection so that an empty run
// still replaces the target with an empty collection.
func (w *MongoWriter) ensureStagingUnsafe(ctx context.Context) error {
	if w.created {
		return nil
	}
	if err := w.client.Database(w.opts.Database).CreateCollection(ctx, w.staging); err != nil {
		return &MongoWriterError{Op: "create_staging", Collection: w.staging, Err: err}
	}
	w.created = true
	return nil
}

func (w *MongoWriter) flushBufferUnsafe(ctx context.Context) error {
	if len(w.docBuf) == 0 {
		return nil
	}
	start := time.Now()
	coll := w.client.Database(w.opts.Database).Collection(w.staging)
	if _, err := coll.InsertMany(ctx, w.docBuf, options.InsertMany().SetOrdered(true)); err != nil {
		return &MongoWriterError{Op: "insert", Collection: w.staging, Err: err}
	}
	w.stats.DocumentsWritten += int64(len(w.docBuf))
	w.stats.BatchesWritten++
	w.stats.WriteDuration += time.Since(start)
	w.docBuf = w.docBuf[:0]
	return nil
}
