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
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"github.com/aaronlmathis/mobility/core"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Package readers provides implementations of core.DataSource for the
// mobility staging data: SQL and document databases, BigQuery, local files
// and S3 objects.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan", "read")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReader implements core.DataSource for PostgreSQL databases.
// Results are streamed directly or through a server-side cursor fetched in batches.
type PostgresReader struct {
	mu          sync.Mutex
	db          *sql.DB
	ownsDB      bool
	tx          *sql.Tx
	rows        *sql.Rows
	columnNames []string
	columnTypes []*sql.ColumnType
	scanBuffer  []interface{}
	values      []interface{}
	batchRows   int
	stats       PostgresReaderStats
	opts        *PostgresReaderOptions
	isFinished  bool
}

// PostgresReaderStats holds statistics about the Postgres reader's performance
type PostgresReaderStats struct {
	RecordsRead     int64
	QueryDuration   time.Duration
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
	ConnectionTime  time.Duration
	BatchesFetched  int64
}

// PostgresReaderOptions configures the Postgres reader
type PostgresReaderOptions struct {
	DSN             string        // Database connection string
	DB              *sql.DB       // Existing pool; the reader does not close it
	Query           string        // SQL query to execute
	Params          []interface{} // Optional query parameters
	BatchSize       int           // Rows per FETCH when UseCursor is set
	ConnMaxLifetime time.Duration // Maximum connection lifetime
	ConnMaxIdleTime time.Duration // Maximum connection idle time
	MaxOpenConns    int           // Maximum open connections
	MaxIdleConns    int           // Maximum idle connections
	QueryTimeout    time.Duration // Bound on connect and query start
	UseCursor       bool          // Use server-side cursor for large results
	CursorName      string        // Name for the cursor (if UseCursor is true)
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresDB reads through an existing connection pool.
func WithPostgresDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// WithPostgresQuery sets the SQL query and optional parameters.
func WithPostgresQuery(query string, params ...interface{}) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Query = query
		if len(params) > 0 {
			opts.Params = make([]interface{}, len(params))
			copy(opts.Params, params)
		}
	}
}

// WithPostgresBatchSize sets the cursor fetch size.
func WithPostgresBatchSize(size int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.BatchSize = size
	}
}

// WithPostgresConnectionPool configures the connection pool.
func WithPostgresConnectionPool(maxOpen, maxIdle int) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.MaxOpenConns = maxOpen
		opts.MaxIdleConns = maxIdle
	}
}

// WithPostgresConnectionTimeout sets connection and idle timeouts.
func WithPostgresConnectionTimeout(lifetime, idleTime time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.ConnMaxLifetime = lifetime
		opts.ConnMaxIdleTime = idleTime
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresCursor enables or disables server-side cursor usage for large results.
func WithPostgresCursor(useCursor bool, cursorName string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.UseCursor = useCursor
		opts.CursorName = cursorName
	}
}

// NewPostgresReader connects, runs the query and returns a reader positioned
// before the first row.
func NewPostgresReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReader, error) {
	opts := (&PostgresReaderOptions{}).withDefaults()
	for _, option := range options {
		option(opts)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	db, owns := opts.DB, false
	if db == nil {
		var err error
		db, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, &PostgresReaderError{Op: "connect", Err: err}
		}
		owns = true
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxIdleConns)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if owns {
			db.Close()
		}
		return nil, &PostgresReaderError{Op: "ping", Err: err}
	}

	reader := &PostgresReader{
		db:     db,
		ownsDB: owns,
		opts:   opts,
		stats: PostgresReaderStats{
			NullValueCounts: make(map[string]int64),
			ConnectionTime:  time.Since(startTime),
		},
	}

	if err := reader.executeQuery(ctx); err != nil {
		reader.Close()
		return nil, err
	}
	return reader, nil
}

// Stats returns statistics about the PostgreSQL reader's performance
func (p *PostgresReader) Stats() PostgresReaderStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	statsCopy := p.stats
	statsCopy.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		statsCopy.NullValueCounts[k] = v
	}
	return statsCopy
}

// Read implements the core.DataSource interface.
func (p *PostgresReader) Read(ctx context.Context) (core.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startTime := time.Now()
	defer func() {
		p.stats.ReadDuration += time.Since(startTime)
		p.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &PostgresReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if p.db == nil {
		return nil, &PostgresReaderError{Op: "read", Err: fmt.Errorf("reader is closed")}
	}
	if p.isFinished || p.rows == nil {
		return nil, io.EOF
	}

	for !p.rows.Next() {
		if err := p.rows.Err(); err != nil {
			return nil, &PostgresReaderError{Op: "read", Err: err}
		}
		if !p.opts.UseCursor || p.batchRows < p.opts.BatchSize {
			p.isFinished = true
			return nil, io.EOF
		}
		if err := p.fetchBatch(ctx); err != nil {
			return nil, err
		}
	}

	if err := p.rows.Scan(p.scanBuffer...); err != nil {
		return nil, &PostgresReaderError{Op: "scan", Err: err}
	}
	p.batchRows++
	p.stats.RecordsRead++

	return p.convertRowToRecord(), nil
}

// Close releases all resources held by the PostgreSQL reader
func (p *PostgresReader) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error

	if p.rows != nil {
		if err := p.rows.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing rows: %w", err))
		}
		p.rows = nil
	}
	if p.tx != nil {
		if err := p.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("rolling back transaction: %w", err))
		}
		p.tx = nil
	}
	if p.db != nil {
		if p.ownsDB {
			if err := p.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing database: %w", err))
			}
		}
		p.db = nil
	}

	if len(errs) > 0 {
		return &PostgresReaderError{Op: "close", Err: errors.Join(errs...)}
	}
	return nil
}

// Schema returns a map of result column name to database type name.
func (p *PostgresReader) Schema() map[string]string {
	schema := make(map[string]string)
	for i, name := range p.columnNames {
		if i < len(p.columnTypes) {
			schema[name] = p.columnTypes[i].DatabaseTypeName()
		}
	}
	return schema
}

// withDefaults applies default values to PostgresReaderOptions
func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	if result.ConnMaxLifetime <= 0 {
		result.ConnMaxLifetime = 5 * time.Minute
	}
	if result.ConnMaxIdleTime <= 0 {
		result.ConnMaxIdleTime = 1 * time.Minute
	}
	if result.MaxOpenConns <= 0 {
		result.MaxOpenConns = 10
	}
	if result.MaxIdleConns <= 0 {
		result.MaxIdleConns = 5
	}
	return result
}

func (opts *PostgresReaderOptions) validate() error {
	if opts.DSN == "" && opts.DB == nil {
		return &PostgresReaderError{Op: "validate", Err: fmt.Errorf("dsn is required")}
	}
	if opts.Query == "" {
		return &PostgresReaderError{Op: "validate", Err: fmt.Errorf("query is required")}
	}
	if opts.UseCursor {
		name := opts.CursorName
		if name == "" {
			name = "mobility_cursor"
		}
		if !isValidCursorName(name) {
			return &PostgresReaderError{Op: "validate_cursor", Err: fmt.Errorf("invalid cursor name: %s", name)}
		}
		opts.CursorName = name
	}
	return nil
}

// executeQuery executes the SQL query and prepares the reader for streaming results
func (p *PostgresReader) executeQuery(ctx context.Context) error {
	startTime := time.Now()

	var err error
	if p.opts.UseCursor {
		err = p.declareCursor(ctx)
	} else {
		p.rows, err = p.db.QueryContext(ctx, p.opts.Query, p.opts.Params...)
		if err != nil {
			err = &PostgresReaderError{Op: "query", Err: err}
		}
	}
	if err != nil {
		return err
	}
	p.stats.QueryDuration = time.Since(startTime)

	if p.columnNames, err = p.rows.Columns(); err != nil {
		return &PostgresReaderError{Op: "columns", Err: err}
	}
	if p.columnTypes, err = p.rows.ColumnTypes(); err != nil {
		return &PostgresReaderError{Op: "column_types", Err: err}
	}

	p.scanBuffer = make([]interface{}, len(p.columnNames))
	p.values = make([]interface{}, len(p.columnNames))
	for i := range p.scanBuffer {
		p.scanBuffer[i] = &p.values[i]
	}
	return nil
}

// declareCursor opens a read-only transaction holding a server-side cursor
// and fetches the first batch.
func (p *PostgresReader) declareCursor(ctx context.Context) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &PostgresReaderError{Op: "begin_transaction", Err: err}
	}
	p.tx = tx

	declareSQL := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", p.opts.CursorName, p.opts.Query)
	if _, err := tx.ExecContext(ctx, declareSQL, p.opts.Params...); err != nil {
		return &PostgresReaderError{Op: "declare_cursor", Err: err}
	}
	return p.fetchBatch(ctx)
}

// fetchBatch replaces the current result set with the next cursor batch.
func (p *PostgresReader) fetchBatch(ctx context.Context) error {
	if p.rows != nil {
		p.rows.Close()
	}
	fetchSQL := fmt.Sprintf("FETCH %d FROM %s", p.opts.BatchSize, p.opts.CursorName)
	rows, err := p.tx.QueryContext(ctx, fetchSQL)
	if err != nil {
		p.rows = nil
		return &PostgresReaderError{Op: "fetch_cursor", Err: err}
	}
	p.rows = rows
	p.batchRows = 0
	p.stats.BatchesFetched++
	return nil
}

// isValidCursorName validates cursor name for SQL injection prevention
func isValidCursorName(name string) bool {
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return len(name) > 0 && len(name) <= 63
}

// convertSQLValue converts SQL driver values to the Go types the decoder expects.
func convertSQLValue(value interface{}, dbType string) interface{} {
	if b, ok := value.([]byte); ok {
		switch dbType {
		case "BYTEA":
			return b
		default:
			return string(b)
		}
	}

	switch v := value.(type) {
	case time.Time:
		if dbType == "DATE" {
			return core.DateOf(v)
		}
		return v
	case bool, int64, float64, string:
		return v
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
			return rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		case reflect.Float32:
			return rv.Float()
		default:
			return fmt.Sprintf("%v", v)
		}
	}
}

// convertRowToRecord converts the scanned SQL row values to a core.Record
func (p *PostgresReader) convertRowToRecord() core.Record {
	record := make(core.Record, len(p.columnNames))
	for i, columnName := range p.columnNames {
		value := p.values[i]
		if value == nil {
			p.stats.NullValueCounts[columnName]++
			record[columnName] = nil
			continue
		}
		record[columnName] = convertSQLValue(value, p.columnTypes[i].DatabaseTypeName())
	}
	return record
}
