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
	"crypto/tls"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/mobility/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoReaderError provides structured error information for MongoDB reader operations
type MongoReaderError struct {
	Op         string // Operation that failed (e.g., "connect", "find", "decode")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoReaderError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo reader %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo reader %s: %v", e.Op, e.Err)
}

func (e *MongoReaderError) Unwrap() error {
	return e.Err
}

// MongoReaderStats holds statistics about the MongoDB reader's performance
type MongoReaderStats struct {
	RecordsRead     int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// MongoReaderOptions configures the MongoDB reader
type MongoReaderOptions struct {
	URI            string        // MongoDB connection URI
	Database       string        // Database name
	Collection     string        // Collection name
	Filter         bson.M        // Query filter
	Projection     bson.M        // Field projection; _id is excluded unless set
	Fields         []string      // Fields every record carries; absent ones read as nil
	Sort           bson.D        // Sort specification, applied in order
	BatchSize      int32         // Batch size for cursor
	Limit          int64         // Maximum number of documents to read
	Timeout        time.Duration // Connect timeout
	ReadPreference string        // primary, secondaryPreferred, ...
	ReadConcern    string        // local, majority, ...
	AuthDatabase   string        // Authentication database
	Username       string        // Authentication username
	Password       string        // Authentication password
	TLS            bool          // Enable TLS
	TLSInsecure    bool          // Skip TLS verification
}

// ReaderOptionMongo is a functional option for MongoReaderOptions
type ReaderOptionMongo func(*MongoReaderOptions)

func WithMongoURI(uri string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.URI = uri }
}

func WithMongoDB(database string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Database = database }
}

func WithMongoCollection(collection string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Collection = collection }
}

func WithMongoFilter(filter bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Filter = filter }
}

func WithMongoProjection(projection bson.M) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Projection = projection }
}

// WithMongoFields projects the listed fields and reports a field the
// document omits as nil, the way a text source reports an empty cell.
func WithMongoFields(fields ...string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Fields = fields }
}

// WithMongoSort sorts ascending on the given fields, in order.
func WithMongoSort(fields ...string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Sort = bson.D{}
		for _, f := range fields {
			opts.Sort = append(opts.Sort, bson.E{Key: f, Value: 1})
		}
	}
}

func WithMongoLimit(limit int64) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Limit = limit }
}

func WithMongoBatchSize(batchSize int32) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.BatchSize = batchSize }
}

func WithMongoTimeout(timeout time.Duration) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.Timeout = timeout }
}

func WithMongoReadPreference(preference string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadPreference = preference }
}

func WithMongoReadConcern(concern string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) { opts.ReadConcern = concern }
}

func WithMongoAuth(username, password, authDB string) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.Username = username
		opts.Password = password
		opts.AuthDatabase = authDB
	}
}

func WithMongoTLS(enabled, insecure bool) ReaderOptionMongo {
	return func(opts *MongoReaderOptions) {
		opts.TLS = enabled
		opts.TLSInsecure = insecure
	}
}

// MongoReader implements core.DataSource with a sorted find over one collection.
type MongoReader struct {
	mu     sync.Mutex
	client *mongo.Client
	cursor *mongo.Cursor
	opts   *MongoReaderOptions
	stats  MongoReaderStats
}

func defaultMongoReaderOptions() *MongoReaderOptions {
	return &MongoReaderOptions{
		URI:            "mongodb://localhost:27017",
		BatchSize:      1000,
		Timeout:        30 * time.Second,
		ReadPreference: "primary",
		ReadConcern:    "local",
	}
}

// NewMongoReader connects and opens the find cursor.
func NewMongoReader(ctx context.Context, options ...ReaderOptionMongo) (*MongoReader, error) {
	opts := defaultMongoReaderOptions()
	for _, option := range options {
		option(opts)
	}

	if opts.Database == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("database name is required")}
	}
	if opts.Collection == "" {
		return nil, &MongoReaderError{Op: "validate", Err: fmt.Errorf("collection name is required")}
	}

	clientOpts, err := buildMongoClientOptions(opts)
	if err != nil {
		return nil, &MongoReaderError{Op: "build_options", Err: err}
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &MongoReaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoReaderError{Op: "ping", Err: err}
	}

	reader := &MongoReader{
		client: client,
		opts:   opts,
		stats:  MongoReaderStats{NullValueCounts: make(map[string]int64)},
	}

	coll := client.Database(opts.Database).Collection(opts.Collection)
	cursor, err := coll.Find(ctx, reader.filter(), reader.findOptions())
	if err != nil {
		client.Disconnect(ctx)
		return nil, &MongoReaderError{Op: "find", Collection: opts.Collection, Err: err}
	}
	reader.cursor = cursor
	return reader, nil
}

func (mr *MongoReader) filter() bson.M {
	if mr.opts.Filter == nil {
		return bson.M{}
	}
	return mr.opts.Filter
}

func (mr *MongoReader) findOptions() *options.FindOptions {
	findOpts := options.Find()
	if mr.opts.BatchSize > 0 {
		findOpts.SetBatchSize(mr.opts.BatchSize)
	}
	if mr.opts.Limit > 0 {
		findOpts.SetLimit(mr.opts.Limit)
	}
	projection := bson.M{"_id": 0}
	for _, field := range mr.opts.Fields {
		projection[field] = 1
	}
	for k, v := range mr.opts.Projection {
		projection[k] = v
	}
	findOpts.SetProjection(projection)
	if len(mr.opts.Sort) > 0 {
		findOpts.SetSort(mr.opts.Sort)
	}
	return findOpts
}

// buildMongoClientOptions constructs MongoDB client options from reader configuration
func buildMongoClientOptions(opts *MongoReaderOptions) (*options.ClientOptions, error) {
	clientOpts := options.Client().ApplyURI(opts.URI)

	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout)
	}

	if opts.Username != "" && opts.Password != "" {
		auth := options.Credential{
			Username:   opts.Username,
			Password:   opts.Password,
			AuthSource: opts.AuthDatabase,
		}
		if auth.AuthSource == "" {
			auth.AuthSource = opts.Database
		}
		clientOpts.SetAuth(auth)
	}

	if opts.TLS {
		clientOpts.SetTLSConfig(&tls.Config{InsecureSkipVerify: opts.TLSInsecure})
	}

	switch opts.ReadPreference {
	case "", "primary":
		clientOpts.SetReadPreference(readpref.Primary())
	case "primaryPreferred":
		clientOpts.SetReadPreference(readpref.PrimaryPreferred())
	case "secondary":
		clientOpts.SetReadPreference(readpref.Secondary())
	case "secondaryPreferred":
		clientOpts.SetReadPreference(readpref.SecondaryPreferred())
	case "nearest":
		clientOpts.SetReadPreference(readpref.Nearest())
	default:
		return nil, fmt.Errorf("invalid read preference: %s", opts.ReadPreference)
	}

	switch opts.ReadConcern {
	case "":
	case "local":
		clientOpts.SetReadConcern(readconcern.Local())
	case "available":
		clientOpts.SetReadConcern(readconcern.Available())
	case "majority":
		clientOpts.SetReadConcern(readconcern.Majority())
	case "linearizable":
		clientOpts.SetReadConcern(readconcern.Linearizable())
	case "snapshot":
		clientOpts.SetReadConcern(readconcern.Snapshot())
	default:
		return nil, fmt.Errorf("invalid read concern: %s", opts.ReadConcern)
	}

	return clientOpts, nil
}

// Read implements the core.DataSource interface
func (mr *MongoReader) Read(ctx context.Context) (core.Record, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	start := time.Now()
	defer func() {
		mr.stats.ReadDuration += time.Since(start)
		mr.stats.LastReadTime = time.Now()
	}()

	if mr.cursor == nil {
		return nil, &MongoReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if !mr.cursor.Next(ctx) {
		if err := mr.cursor.Err(); err != nil {
			return nil, &MongoReaderError{Op: "read", Collection: mr.opts.Collection, Err: err}
		}
		return nil, io.EOF
	}

	var doc bson.M
	if err := mr.cursor.Decode(&doc); err != nil {
		return nil, &MongoReaderError{Op: "decode", Collection: mr.opts.Collection, Err: err}
	}

	record := documentRecord(doc, mr.opts.Fields, mr.stats.NullValueCounts)
	mr.stats.RecordsRead++
	return record, nil
}

// documentRecord converts doc to a record, filling any of fields the document
// omits with nil. nulls counts nil values per field.
func documentRecord(doc bson.M, fields []string, nulls map[string]int64) core.Record {
	record := make(core.Record, len(doc)+len(fields))
	for key, value := range doc {
		record[key] = convertBSONValue(value)
	}
	for _, field := range fields {
		if _, ok := record[field]; !ok {
			record[field] = nil
		}
	}
	for key, value := range record {
		if value == nil {
			nulls[key]++
		}
	}
	return record
}

// Close implements the core.DataSource interface
func (mr *MongoReader) Close() error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if mr.cursor != nil {
		if err := mr.cursor.Close(ctx); err != nil {
			firstErr = &MongoReaderError{Op: "close_cursor", Err: err}
		}
		mr.cursor = nil
	}
	if mr.client != nil {
		if err := mr.client.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = &MongoReaderError{Op: "disconnect", Err: err}
		}
		mr.client = nil
	}
	return firstErr
}

// Stats returns a snapshot of reader statistics.
func (mr *MongoReader) Stats() MongoReaderStats {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	stats := mr.stats
	stats.NullValueCounts = make(map[string]int64, len(mr.stats.NullValueCounts))
	for k, v := range mr.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}

// convertBSONValue converts BSON values to the Go types the decoder expects.
func convertBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case int32:
		return int64(v)
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Decimal128:
		bigInt, exp, err := v.BigInt()
		if err == nil && exp == 0 && bigInt.IsInt64() {
			return bigInt.Int64()
		}
		return v.String()
	case primitive.Binary:
		return v.Data
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Undefined, primitive.Null:
		return nil
	case bson.M:
		result := make(map[string]interface{}, len(v))
		for k, val := range v {
			result[k] = convertBSONValue(val)
		}
		return result
	case bson.A:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = convertBSONValue(val)
		}
		return result
	default:
		return v
	}
}
