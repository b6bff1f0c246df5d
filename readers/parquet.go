package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/mobility/core"
)

// ParquetReaderError provides structured error information for parquet reader operations
type ParquetReaderError struct {
	Op  string // Operation that failed (e.g., "open_file", "load_batch", "column_projection")
	Err error  // Underlying error
}

func (e *ParquetReaderError) Error() string {
	return fmt.Sprintf("parquet reader %s: %v", e.Op, e.Err)
}

func (e *ParquetReaderError) Unwrap() error {
	return e.Err
}

// ParquetReaderStats holds read statistics.
type ParquetReaderStats struct {
	RecordsRead     int64
	BatchesRead     int64
	ReadDuration    time.Duration
	NullValueCounts map[string]int64
}

// ParquetReaderOptions configures the Parquet reader.
type ParquetReaderOptions struct {
	BatchSize int64    // Rows per Arrow record batch
	Columns   []string // Optional column projection
}

// ReaderOptionParquet is a functional option for ParquetReaderOptions.
type ReaderOptionParquet func(*ParquetReaderOptions)

func WithParquetBatchSize(size int64) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) { opts.BatchSize = size }
}

// WithParquetColumns limits the read to the named columns.
func WithParquetColumns(columns ...string) ReaderOptionParquet {
	return func(opts *ParquetReaderOptions) { opts.Columns = append([]string(nil), columns...) }
}

// ParquetReader reads a Parquet file, such as an earlier export of the
// cleaned table, one row at a time. DATE columns come back as core.Date and
// integer columns as int64.
type ParquetReader struct {
	file   *os.File
	rows   pqarrow.RecordReader
	schema *arrow.Schema
	total  int64

	batch arrow.Record
	next  int // index of the next row in batch

	stats ParquetReaderStats
}

// NewParquetReader opens filename and prepares a batched Arrow record reader.
func NewParquetReader(ctx context.Context, filename string, options ...ReaderOptionParquet) (*ParquetReader, error) {
	opts := &ParquetReaderOptions{BatchSize: 1000}
	for _, option := range options {
		option(opts)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, &ParquetReaderError{Op: "open_file", Err: err}
	}
	r, err := openParquet(ctx, f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func openParquet(ctx context.Context, f *os.File, opts *ParquetReaderOptions) (*ParquetReader, error) {
	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_reader", Err: err}
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: opts.BatchSize}, memory.NewGoAllocator())
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_arrow_reader", Err: err}
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, &ParquetReaderError{Op: "get_schema", Err: err}
	}

	// A nil index list reads every column.
	var columns []int
	for _, name := range opts.Columns {
		idx := schema.FieldIndices(name)
		if len(idx) == 0 {
			return nil, &ParquetReaderError{Op: "column_projection", Err: fmt.Errorf("column %q not found in schema", name)}
		}
		columns = append(columns, idx[0])
	}

	rows, err := fr.GetRecordReader(ctx, columns, nil)
	if err != nil {
		return nil, &ParquetReaderError{Op: "create_record_reader", Err: err}
	}
	return &ParquetReader{
		file:   f,
		rows:   rows,
		schema: schema,
		total:  pf.NumRows(),
		stats:  ParquetReaderStats{NullValueCounts: make(map[string]int64)},
	}, nil
}

// Read returns the next row, or io.EOF after the last one.
func (p *ParquetReader) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ParquetReaderError{Op: "read", Err: err}
	}
	start := time.Now()
	defer func() { p.stats.ReadDuration += time.Since(start) }()

	for p.batch == nil || p.next >= int(p.batch.NumRows()) {
		if err := p.advance(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &ParquetReaderError{Op: "load_batch", Err: err}
		}
	}

	row := make(core.Record, p.batch.NumCols())
	for i, field := range p.batch.Schema().Fields() {
		row[field.Name] = p.value(field.Name, p.batch.Column(i), p.next)
	}
	p.next++
	p.stats.RecordsRead++
	return row, nil
}

// advance replaces the current batch with the next non-empty one.
func (p *ParquetReader) advance() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	rec, err := p.rows.Read()
	if err != nil {
		return err
	}
	if rec == nil {
		return io.EOF
	}
	rec.Retain()
	p.batch = rec
	p.next = 0
	p.stats.BatchesRead++
	return nil
}

func (p *ParquetReader) value(name string, col arrow.Array, row int) interface{} {
	if col.IsNull(row) {
		p.stats.NullValueCounts[name]++
		return nil
	}
	switch arr := col.(type) {
	case *array.String:
		return arr.Value(row)
	case *array.Int64:
		return arr.Value(row)
	case *array.Int32:
		return int64(arr.Value(row))
	case *array.Date32:
		return core.DateOf(arr.Value(row).ToTime())
	case *array.Date64:
		return core.DateOf(arr.Value(row).ToTime())
	case *array.Float64:
		return arr.Value(row)
	case *array.Boolean:
		return arr.Value(row)
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(row).ToTime(unit)
	default:
		return fmt.Sprint(col.GetOneForMarshal(row))
	}
}

// Close releases the current batch, the record reader and the file.
func (p *ParquetReader) Close() error {
	if p.batch != nil {
		p.batch.Release()
		p.batch = nil
	}
	if p.rows != nil {
		p.rows.Release()
		p.rows = nil
	}
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Schema returns the Arrow schema of the file.
func (p *ParquetReader) Schema() *arrow.Schema { return p.schema }

// TotalRows returns the row count stored in the file metadata.
func (p *ParquetReader) TotalRows() int64 { return p.total }

// Stats returns a snapshot of the read statistics.
func (p *ParquetReader) Stats() ParquetReaderStats {
	stats := p.stats
	stats.NullValueCounts = make(map[string]int64, len(p.stats.NullValueCounts))
	for k, v := range p.stats.NullValueCounts {
		stats.NullValueCounts[k] = v
	}
	return stats
}
