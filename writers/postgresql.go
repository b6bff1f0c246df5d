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
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aaronlmathis/mobility/core"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresWriterError wraps PostgreSQL-specific write errors with context about the operation.
type PostgresWriterError struct {
	Op  string // The operation being performed (e.g., "write", "connect")
	Err error  // The underlying error
}

// Error returns the error string for PostgresWriterError.
func (e *PostgresWriterError) Error() string {
	return fmt.Sprintf("postgres writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresWriterError.
func (e *PostgresWriterError) Unwrap() error {
	return e.Err
}

// PostgresWriterStats holds PostgreSQL write performance statistics.
type PostgresWriterStats struct {
	RecordsWritten  int64            // Total records written
	BatchesWritten  int64            // Number of INSERT statements executed
	Committed       bool             // Whether the replacement was committed
	LastWriteTime   time.Time        // Time of last write
	WriteDuration   time.Duration    // Total time spent writing
	ConnectionTime  time.Duration    // Time spent establishing connection
	NullValueCounts map[string]int64 // Count of null values per column
}

// PostgresWriterOptions configures the PostgreSQL writer.
type PostgresWriterOptions struct {
	DSN             string        // PostgreSQL connection string
	DB              *sql.DB       // Existing pool; the writer does not close it
	Schema          string        // Database schema; empty uses the search path
	TableName       string        // Target table name
	Columns         core.Schema   // Column names and types, in table order
	BatchSize       int           // Number of records per INSERT
	CreateTable     bool          // Create table if not exists
	ConnMaxLifetime time.Duration // Max connection lifetime
	ConnMaxIdleTime time.Duration // Max idle connection time
	MaxOpenConns    int           // Max open connections
	MaxIdleConns    int           // Max idle connections
	QueryTimeout    time.Duration // Timeout for connect and flush
}

// PostgresWriterOption represents a configuration function for PostgresWriterOptions.
type PostgresWriterOption func(*PostgresWriterOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB writes through an existing connection pool.
func WithPostgresDB(db *sql.DB) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.DB = db
	}
}

// WithTableName sets the target schema and table. An empty schema uses the search path.
func WithTableName(schema, table string) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Schema = schema
		opts.TableName = table
	}
}

// WithColumns sets the table columns.
func WithColumns(columns core.Schema) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.Columns = append(core.Schema(nil), columns...)
	}
}

// WithPostgresBatchSize sets the batch size for writes.
func WithPostgresBatchSize(size int) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCreateTable enables or disables table creation.
func WithCreateTable(create bool) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.CreateTable = create
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
		opts.ConnMaxLifetime = maxLifetime
		opts.ConnMaxIdleTime = maxIdleTime
	}
}

// WithPostgresQueryTimeout sets the query timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresWriterOption {
	return func(opts *PostgresWriterOptions) {
		opts.QueryTimeout = timeout
	}
}

// PostgresWriter replaces the contents of a PostgreSQL table inside a single
// transaction: the table is created if absent and truncated, the records are
// inserted in batches, and nothing becomes visible until Commit.
// It implements core.TransactionalSink.
type PostgresWriter struct {
	db         *sql.DB
	ownsDB     bool
	tx         *sql.Tx
	options    PostgresWriterOptions
	table      string
	columns    []string
	recordBuf  []core.Record
	stats      PostgresWriterStats
	errorState bool
	finished   bool
	mu         sync.Mutex
}

// NewPostgresWriter creates a new PostgreSQL writer and verifies the connection.
// The replacement transaction starts with the first write or at Commit.
func NewPostgresWriter(ctx context.Context, opts ...PostgresWriterOption) (*PostgresWriter, error) {
	options := &PostgresWriterOptions{}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := options.validate(); err != nil {
		return nil, &PostgresWriterError{Op: "validate", Err: err}
	}

	writer := &PostgresWriter{
		options:   *options,
		table:     QualifiedName(DialectPostgres, options.Schema, options.TableName),
		columns:   options.Columns.Columns(),
		recordBuf: make([]core.Record, 0, options.BatchSize),
		stats:     PostgresWriterStats{NullValueCounts: make(map[string]int64)},
	}

	if err := writer.connect(ctx); err != nil {
		return nil, &PostgresWriterError{Op: "connect", Err: err}
	}

	return writer, nil
}

// Stats returns a copy of the current write statistics.
func (w *PostgresWriter) Stats() PostgresWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	statsCopy := w.stats
	statsCopy.NullValueCounts = make(map[string]int64)
	for k, v := range w.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Write implements the core.DataSink interface.
// Buffers records and inserts them in batches inside the replacement transaction.
func (w *PostgresWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkStateUnsafe(); err != nil {
		return &PostgresWriterError{Op: "write", Err: err}
	}
	if w.tx == nil {
		if err := w.beginUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "begin", Err: err}
		}
	}

	for _, col := range w.columns {
		if record[col] == nil {
			w.stats.NullValueCounts[col]++
		}
	}

	w.recordBuf = append(w.recordBuf, record)

	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "flush_batch", Err: err}
		}
	}

	return nil
}

// Flush implements the core.DataSink interface.
// Inserts any buffered records; they stay invisible until Commit.
func (w *PostgresWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.tx == nil || len(w.recordBuf) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()

	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &PostgresWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Commit inserts remaining records and commits the replacement. A run that
// wrote no records still leaves the table created and empty.
func (w *PostgresWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkStateUnsafe(); err != nil {
		return &PostgresWriterError{Op: "commit", Err: err}
	}
	if w.tx == nil {
		if err := w.beginUnsafe(ctx); err != nil {
			w.errorState = true
			return &PostgresWriterError{Op: "begin", Err: err}
		}
	}
	if err := w.flushBufferUnsafe(ctx); err != nil {
		w.errorState = true
		return &PostgresWriterError{Op: "flush", Err: err}
	}

	err := w.tx.Commit()
	w.tx = nil
	w.finished = true
	if err != nil {
		return &PostgresWriterError{Op: "commit", Err: err}
	}
	w.stats.Committed = true
	return nil
}

// Abort rolls back the replacement transaction. The table keeps the
// contents of the last committed run.
func (w *PostgresWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.abortUnsafe()
}

func (w *PostgresWriter) abortUnsafe() error {
	w.finished = true
	w.recordBuf = w.recordBuf[:0]
	if w.tx == nil {
		return nil
	}
	err := w.tx.Rollback()
	w.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return &PostgresWriterError{Op: "rollback", Err: err}
	}
	return nil
}

// Close implements the core.DataSink interface.
// An uncommitted transaction is rolled back.
func (w *PostgresWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.abortUnsafe()
	if w.db != nil && w.ownsDB {
		if cerr := w.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.db = nil
	}
	return err
}

func (w *PostgresWriter) checkStateUnsafe() error {
	if w.finished {
		return ErrSinkFinished
	}
	if w.errorState {
		return fmt.Errorf("writer is in error state")
	}
	return nil
}

// withDefaults applies default values to PostgresWriterOptions.
func (opts *PostgresWriterOptions) withDefaults() *PostgresWriterOptions {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultTableBatchSize
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = 1 * time.Minute
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 4
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 2
	}
	return opts
}

// validate checks the PostgreSQL writer options.
func (opts *PostgresWriterOptions) validate() error {
	if opts.DSN == "" && opts.DB == nil {
		return fmt.Errorf("dsn is required")
	}
	if opts.TableName == "" {
		return fmt.Errorf("table name is required")
	}
	if len(opts.Columns) == 0 {
		return fmt.Errorf("columns are required")
	}
	if opts.BatchSize*len(opts.Columns) > maxBindParams {
		return fmt.Errorf("batch size %d exceeds %d bind parameters per statement", opts.BatchSize, maxBindParams)
	}
	return nil
}

// connect establishes the database connection and configures the connection pool.
func (w *PostgresWriter) connect(ctx context.Context) error {
	start := time.Now()

	db := w.options.DB
	if db == nil {
		var err error
		db, err = sql.Open("postgres", w.options.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(w.options.MaxOpenConns)
		db.SetMaxIdleConns(w.options.MaxIdleConns)
		db.SetConnMaxLifetime(w.options.ConnMaxLifetime)
		db.SetConnMaxIdleTime(w.options.ConnMaxIdleTime)
		w.ownsDB = true
	}

	pingCtx, cancel := context.WithTimeout(ctx, w.options.QueryTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if w.ownsDB {
			db.Close()
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	w.db = db
	w.stats.ConnectionTime = time.Since(start)
	return nil
}

// beginUnsafe opens the replacement transaction, creating and truncating the
// table (must hold mutex).
func (w *PostgresWriter) beginUnsafe(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if w.options.CreateTable {
		if _, err := tx.ExecContext(ctx, CreateTableSQL(DialectPostgres, w.table, w.options.Columns)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+w.table); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to truncate table: %w", err)
	}
	w.tx = tx
	return nil
}

// flushBufferUnsafe inserts buffered records with one multi-row INSERT (must hold mutex).
func (w *PostgresWriter) flushBufferUnsafe(ctx context.Context) error {
	if len(w.recordBuf) == 0 {
		return nil
	}

	start := time.Now()
	query := insertSQL(DialectPostgres, w.table, w.columns, len(w.recordBuf))
	if _, err := w.tx.ExecContext(ctx, query, insertArgs(w.recordBuf, w.columns)...); err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}

	w.stats.RecordsWritten += int64(len(w.recordBuf))
	w.stats.BatchesWritten++
	w.stats.LastWriteTime = time.Now()
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]

	return nil
}
