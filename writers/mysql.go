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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/aaronlmathis/mobility/core"
)

// MySQLWriterError wraps MySQL-specific write errors with context about the operation.
type MySQLWriterError struct {
	Op  string
	Err error
}

func (e *MySQLWriterError) Error() string {
	return fmt.Sprintf("mysql writer %s: %v", e.Op, e.Err)
}

func (e *MySQLWriterError) Unwrap() error {
	return e.Err
}

// MySQLWriterStats holds MySQL write statistics.
type MySQLWriterStats struct {
	RecordsWritten int64
	BatchesWritten int64
	StagingTable   string
	Committed      bool
	CleanupErr     error
	WriteDuration  time.Duration
	ConnectionTime time.Duration
}

// MySQLWriterOptions configures the MySQL writer.
type MySQLWriterOptions struct {
	DSN          string        // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/db
	DB           *sql.DB       // Existing pool; the writer does not close it
	Database     string        // Target database; defaults to the DSN database
	TableName    string        // Target table name
	Columns      core.Schema   // Column names and types, in table order
	BatchSize    int           // Number of records per INSERT
	QueryTimeout time.Duration // Timeout for connect and flush
}

// MySQLWriterOption is a functional option for MySQLWriterOptions.
type MySQLWriterOption func(*MySQLWriterOptions)

func WithMySQLDSN(dsn string) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) { opts.DSN = dsn }
}

func WithMySQLDB(db *sql.DB) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) { opts.DB = db }
}

// WithMySQLTable sets the target database and table.
func WithMySQLTable(database, table string) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) {
		opts.Database = database
		opts.TableName = table
	}
}

func WithMySQLColumns(columns core.Schema) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) { opts.Columns = append(core.Schema(nil), columns...) }
}

func WithMySQLBatchSize(size int) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) { opts.BatchSize = size }
}

func WithMySQLQueryTimeout(timeout time.Duration) MySQLWriterOption {
	return func(opts *MySQLWriterOptions) { opts.QueryTimeout = timeout }
}

// MySQLWriter replaces the contents of a MySQL table. Records are loaded into
// a private staging table; Commit swaps it with the target in one RENAME
// TABLE statement, so readers see either the old or the new rows.
// It implements core.TransactionalSink.
type MySQLWriter struct {
	mu        sync.Mutex
	db        *sql.DB
	ownsDB    bool
	options   MySQLWriterOptions
	columns   []string
	target    string
	staging   string
	retired   string
	stageName string
	created   bool
	finished  bool
	recordBuf []core.Record
	stats     MySQLWriterStats
}

// NewMySQLWriter connects and verifies the connection. The staging table is
// created with the first write or at Commit.
func NewMySQLWriter(ctx context.Context, opts ...MySQLWriterOption) (*MySQLWriter, error) {
	options := &MySQLWriterOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultTableBatchSize
	}
	if options.QueryTimeout <= 0 {
		options.QueryTimeout = 30 * time.Second
	}
	if options.TableName == "" {
		return nil, &MySQLWriterError{Op: "validate", Err: fmt.Errorf("table name is required")}
	}
	if len(options.Columns) == 0 {
		return nil, &MySQLWriterError{Op: "validate", Err: fmt.Errorf("columns are required")}
	}

	start := time.Now()
	db, owns := options.DB, false
	if db == nil {
		if options.DSN == "" {
			return nil, &MySQLWriterError{Op: "validate", Err: fmt.Errorf("dsn is required")}
		}
		cfg, err := mysql.ParseDSN(options.DSN)
		if err != nil {
			return nil, &MySQLWriterError{Op: "parse_dsn", Err: err}
		}
		if options.Database == "" {
			options.Database = cfg.DBName
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, &MySQLWriterError{Op: "connect", Err: err}
		}
		db, owns = sql.OpenDB(connector), true
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, options.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if owns {
			db.Close()
		}
		return nil, &MySQLWriterError{Op: "ping", Err: err}
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	w := &MySQLWriter{
		db:        db,
		ownsDB:    owns,
		options:   *options,
		columns:   options.Columns.Columns(),
		target:    QualifiedName(DialectMySQL, options.Database, options.TableName),
		stageName: stagingName(options.TableName, "stg", suffix),
		recordBuf: make([]core.Record, 0, options.BatchSize),
	}
	w.staging = QualifiedName(DialectMySQL, options.Database, w.stageName)
	w.retired = QualifiedName(DialectMySQL, options.Database, stagingName(options.TableName, "old", suffix))
	w.stats.StagingTable = w.stageName
	w.stats.ConnectionTime = time.Since(start)
	return w, nil
}

// stagingName derives a helper table name that fits MySQL's 64 character limit.
func stagingName(table, kind, suffix string) string {
	name := fmt.Sprintf("%s__%s_%s", table, kind, suffix)
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return name
}

// Stats returns a copy of the write statistics.
func (w *MySQLWriter) Stats() MySQLWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Write implements the core.DataSink interface.
func (w *MySQLWriter) Write(ctx context.Context, record core.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &MySQLWriterError{Op: "write", Err: ErrSinkFinished}
	}
	if err := w.ensureStagingUnsafe(ctx); err != nil {
		return &MySQLWriterError{Op: "create_staging", Err: err}
	}
	w.recordBuf = append(w.recordBuf, record)
	if len(w.recordBuf) >= w.options.BatchSize {
		if err := w.flushBufferUnsafe(ctx); err != nil {
			return &MySQLWriterError{Op: "flush_batch", Err: err}
		}
	}
	return nil
}

// Flush implements the core.DataSink interface.
func (w *MySQLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished || len(w.recordBuf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()
	if err := w.flushBufferUnsafe(ctx); err != nil {
		return &MySQLWriterError{Op: "flush", Err: err}
	}
	return nil
}

// Commit swaps the staging table into place and drops the previous table.
func (w *MySQLWriter) Commit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finished {
		return &MySQLWriterError{Op: "commit", Err: ErrSinkFinished}
	}
	if err := w.ensureStagingUnsafe(ctx); err != nil {
		return &MySQLWriterError{Op: "create_staging", Err: err}
	}
	if err := w.flushBufferUnsafe(ctx); err != nil {
		return &MySQLWriterError{Op: "flush", Err: err}
	}

	if _, err := w.db.ExecContext(ctx, CreateTableSQL(DialectMySQL, w.target, w.options.Columns)); err != nil {
		return &MySQLWriterError{Op: "create_table", Err: err}
	}
	swap := fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s", w.target, w.retired, w.staging, w.target)
	if _, err := w.db.ExecContext(ctx, swap); err != nil {
		return &MySQLWriterError{Op: "rename", Err: err}
	}
	w.finished = true
	w.stats.Committed = true

	// The swap is already visible; a leftover previous table is only reported.
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+w.retired); err != nil {
		w.stats.CleanupErr = &MySQLWriterError{Op: "drop_previous", Err: err}
	}
	return nil
}

// Abort drops the staging table. The target table is untouched.
func (w *MySQLWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.abortUnsafe()
}

func (w *MySQLWriter) abortUnsafe() error {
	if w.finished {
		return nil
	}
	w.finished = true
	w.recordBuf = w.recordBuf[:0]
	if !w.created {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.options.QueryTimeout)
	defer cancel()
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+w.staging); err != nil {
		return &MySQLWriterError{Op: "drop_staging", Err: err}
	}
	return nil
}

// Close aborts an uncommitted load and releases the connection pool.
func (w *MySQLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.abortUnsafe()
	if w.ownsDB && w.db != nil {
		if cerr := w.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.db = nil
	}
	return err
}

func (w *MySQLWriter) ensureStagingUnsafe(ctx context.Context) error {
	if w.created {
		return nil
	}
	if _, err := w.db.ExecContext(ctx, createTableSQL(DialectMySQL, w.staging, w.options.Columns, false)); err != nil {
		return err
	}
	w.created = true
	return nil
}

func (w *MySQLWriter) flushBufferUnsafe(ctx context.Context) error {
	if len(w.recordBuf) == 0 {
		return nil
	}
	start := time.Now()
	query := insertSQL(DialectMySQL, w.staging, w.columns, len(w.recordBuf))
	if _, err := w.db.ExecContext(ctx, query, insertArgs(w.recordBuf, w.columns)...); err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}
	w.stats.RecordsWritten += int64(len(w.recordBuf))
	w.stats.BatchesWritten++
	w.stats.WriteDuration += time.Since(start)
	w.recordBuf = w.recordBuf[:0]
	return nil
}
