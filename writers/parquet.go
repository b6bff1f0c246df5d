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
	"io"
	"math"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/mobility/core"
)

// ParquetWriterError wraps Parquet-specific write errors with context about the operation.
type ParquetWriterError struct {
	Op  string // Operation that failed (e.g., "schema", "append_value", "write_batch")
	Err error  // Underlying error
}

// Error returns the error string for ParquetWriterError.
func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for ParquetWriterError.
func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements core.DataSink for Parquet output on any io.Writer.
// Records are buffered and written as Arrow record batches. The file footer
// is written by Close, so the output is only a valid Parquet file afterwards.
type ParquetWriter struct {
	out          io.Writer
	writer       *pqarrow.FileWriter
	schema       *arrow.Schema
	closed       bool
	batchSize    int64
	recordBuffer []core.Record
	fieldOrder   []string
	stats        WriterStats
	errorState   bool
	builders     []array.Builder
	allocator    memory.Allocator
	opts         *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize      int64                // Number of records to buffer before writing
	Schema         core.Schema          // Explicit column types; inferred from the first record when empty
	Compression    compress.Compression // Compression algorithm
	FieldOrder     []string             // Explicit field ordering for inferred schemas
	RowGroupSize   int64                // Maximum rows per row group
	Metadata       map[string]string    // File key/value metadata
	ValidateSchema bool                 // Reject values whose type does not match the column
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOptionParquet represents a configuration function for ParquetWriterOptions.
type WriterOptionParquet func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithParquetSchema declares the column types up front. DATE columns are
// written as date32.
func WithParquetSchema(schema core.Schema) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = append(core.Schema(nil), schema...)
	}
}

// WithFieldOrder sets the explicit field ordering for an inferred schema.
func WithFieldOrder(fields []string) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithSchemaValidation enables or disables strict schema validation.
func WithSchemaValidation(validate bool) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.ValidateSchema = validate
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata sets key/value metadata stored in the file footer.
func WithMetadata(metadata map[string]string) WriterOptionParquet {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string)
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// NewParquetWriter creates a Parquet writer that encodes into w. With an
// explicit schema the file writer is opened immediately, so an empty run
// still produces a valid file.
func NewParquetWriter(w io.Writer, options ...WriterOptionParquet) (*ParquetWriter, error) {
	opts := &ParquetWriterOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	writer := &ParquetWriter{
		out:          w,
		batchSize:    opts.BatchSize,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}

	if len(opts.Schema) > 0 {
		fields := make([]arrow.Field, len(opts.Schema))
		order := make([]string, len(opts.Schema))
		for i, f := range opts.Schema {
			dt, err := arrowType(f.Type)
			if err != nil {
				return nil, &ParquetWriterError{Op: "schema", Err: fmt.Errorf("field %s: %w", f.Name, err)}
			}
			fields[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: !f.Required}
			order[i] = f.Name
		}
		writer.fieldOrder = order
		if err := writer.open(fields); err != nil {
			return nil, err
		}
	}
	return writer, nil
}

// arrowType maps a logical column type to its Arrow type.
func arrowType(t core.FieldType) (arrow.DataType, error) {
	switch t {
	case core.TypeString:
		return arrow.BinaryTypes.String, nil
	case core.TypeInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case core.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	default:
		return nil, fmt.Errorf("unsupported field type %s", t)
	}
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the core.DataSink interface.
// Buffers records and writes in batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{
			Op:  "write",
			Err: fmt.Errorf("parquet writer is closed"),
		}
	}

	if p.errorState {
		return &ParquetWriterError{
			Op:  "write",
			Err: fmt.Errorf("writer is in error state"),
		}
	}

	if p.schema == nil {
		if err := p.initializeSchemaFromRecord(record); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "schema",
				Err: fmt.Errorf("failed to initialize schema: %w", err),
			}
		}
	}

	if p.opts.ValidateSchema {
		if err := p.validateRecord(record); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "validate",
				Err: fmt.Errorf("record validation failed: %w", err),
			}
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.batchSize {
		if err := p.flushBatch(); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "flush_batch",
				Err: fmt.Errorf("failed to flush batch: %w", err),
			}
		}
	}

	return nil
}

// Flush implements the core.DataSink interface.
// Forces any buffered records into the current row group.
func (p *ParquetWriter) Flush() error {
	if len(p.recordBuffer) > 0 {
		return p.flushBatch()
	}
	return nil
}

// Close implements the core.DataSink interface.
// Flushes remaining records and writes the file footer.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if len(p.recordBuffer) > 0 && !p.errorState {
		if err := p.flushBatch(); err != nil {
			return &ParquetWriterError{
				Op:  "flush_remaining",
				Err: fmt.Errorf("failed to flush remaining records: %w", err),
			}
		}
	}

	for _, builder := range p.builders {
		if builder != nil {
			builder.Release()
		}
	}
	p.builders = nil

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{
				Op:  "close_writer",
				Err: fmt.Errorf("failed to close parquet writer: %w", err),
			}
		}
		p.writer = nil
	}
	return nil
}

// withDefaults applies default values to ParquetWriterOptions.
func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}

	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	if result.Metadata == nil {
		result.Metadata = make(map[string]string)
	}
	return result
}

// initializeSchemaFromRecord creates an Arrow schema from the first record.
func (p *ParquetWriter) initializeSchemaFromRecord(record core.Record) error {
	fieldNames := p.fieldOrder
	if fieldNames == nil {
		fieldNames = make([]string, 0, len(record))
		for name := range record {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)
		p.fieldOrder = fieldNames
	}

	fields := make([]arrow.Field, 0, len(fieldNames))
	for _, name := range fieldNames {
		dataType := arrow.DataType(arrow.BinaryTypes.String)
		if value, exists := record[name]; exists && value != nil {
			var err error
			if dataType, err = inferArrowType(value); err != nil {
				return &ParquetWriterError{
					Op:  "schema",
					Err: fmt.Errorf("failed to infer arrow type for field %s: %w", name, err),
				}
			}
		}
		fields = append(fields, arrow.Field{Name: name, Type: dataType, Nullable: true})
	}
	return p.open(fields)
}

// open creates the file writer and the column builders for fields.
func (p *ParquetWriter) open(fields []arrow.Field) error {
	var metadata *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		keys := make([]string, 0, len(p.opts.Metadata))
		for k := range p.opts.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = p.opts.Metadata[k]
		}
		md := arrow.NewMetadata(keys, values)
		metadata = &md
	}
	p.schema = arrow.NewSchema(fields, metadata)

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
		parquet.WithAllocator(p.allocator),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(p.schema, p.out, props, arrowProps)
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	p.builders = make([]array.Builder, len(fields))
	for i, field := range fields {
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}
	return nil
}

// inferArrowType infers the Arrow data type from a Go value.
func inferArrowType(value interface{}) (arrow.DataType, error) {
	switch value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case int, int64:
		return arrow.PrimitiveTypes.Int64, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case string:
		return arrow.BinaryTypes.String, nil
	case core.Date:
		return arrow.FixedWidthTypes.Date32, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, &ParquetWriterError{
			Op:  "type_inference",
			Err: fmt.Errorf("unsupported type %T for value %v", value, value),
		}
	}
}

// flushBatch writes the current buffer as one Arrow record batch.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}
	startTime := time.Now()

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(startTime)
	p.stats.LastFlushTime = time.Now()
	p.recordBuffer = p.recordBuffer[:0]
	return nil
}

// createArrowRecord converts a slice of core.Record to an Arrow Record.
func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, fieldName := range p.fieldOrder {
			value, exists := record[fieldName]
			if !exists || value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[fieldName]++
				continue
			}
			if err := appendValueToBuilder(p.builders[i], value); err != nil {
				p.discardBuilders()
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("field %s: %w", fieldName, err),
				}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}
	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

// discardBuilders drops partially appended values.
func (p *ParquetWriter) discardBuilders() {
	for _, builder := range p.builders {
		builder.NewArray().Release()
	}
}

// appendValueToBuilder appends a value to the matching Arrow array builder.
func appendValueToBuilder(builder array.Builder, value interface{}) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		b.Append(v)
	case *array.Int32Builder:
		switch v := value.(type) {
		case int32:
			b.Append(v)
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("int value %d out of range for int32", v)
			}
			b.Append(int32(v))
		default:
			return fmt.Errorf("expected int32, got %T", value)
		}
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		case int32:
			b.Append(int64(v))
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}
	case *array.Float64Builder:
		v, ok := value.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", value)
		}
		b.Append(v)
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}
	case *array.Date32Builder:
		switch v := value.(type) {
		case core.Date:
			b.Append(arrow.Date32(v.DaysSinceEpoch()))
		case time.Time:
			b.Append(arrow.Date32FromTime(v))
		default:
			return fmt.Errorf("expected date, got %T", value)
		}
	case *array.TimestampBuilder:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
		b.Append(arrow.Timestamp(v.UnixMicro()))
	default:
		return fmt.Errorf("unsupported builder type %T", builder)
	}
	return nil
}

// validateRecord checks that a record matches the schema.
func (p *ParquetWriter) validateRecord(record core.Record) error {
	for _, field := range p.schema.Fields() {
		value, exists := record[field.Name]
		if !exists || value == nil {
			if !field.Nullable {
				return fmt.Errorf("field %s: required value is missing", field.Name)
			}
			continue
		}
		if err := validateFieldType(field, value); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

// validateFieldType checks that a value matches the Arrow field type.
func validateFieldType(field arrow.Field, value interface{}) error {
	switch field.Type.ID() {
	case arrow.BOOL:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case arrow.INT32:
		switch value.(type) {
		case int, int32:
		default:
			return fmt.Errorf("expected int/int32, got %T", value)
		}
	case arrow.INT64:
		switch value.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("expected int/int64, got %T", value)
		}
	case arrow.FLOAT64:
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("expected float64, got %T", value)
		}
	case arrow.STRING:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case arrow.DATE32:
		switch value.(type) {
		case core.Date, time.Time:
		default:
			return fmt.Errorf("expected date, got %T", value)
		}
	case arrow.TIMESTAMP:
		if _, ok := value.(time.Time); !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported arrow type %s for validation", field.Type)
	}
	return nil
}
