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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"

	"github.com/aaronlmathis/mobility/aggregate"
	"github.com/aaronlmathis/mobility/config"
	"github.com/aaronlmathis/mobility/core"
	"github.com/aaronlmathis/mobility/filter"
	"github.com/aaronlmathis/mobility/mobility"
	"github.com/aaronlmathis/mobility/pipeline"
	"github.com/aaronlmathis/mobility/readers"
	"github.com/aaronlmathis/mobility/transform"
	"github.com/aaronlmathis/mobility/validators"
	"github.com/aaronlmathis/mobility/writers"
)

// Summary output fields.
const (
	summaryRecords = "records"
	summaryMin     = "min_average_change"
	summaryMean    = "mean_average_change"
	summaryMax     = "max_average_change"
)

func (c *cli) runCmd() *cobra.Command {
	var printSummary bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once: read, clean, write the log, replace the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			r := newRun(cfg, logger)
			if err := r.execute(cmd.Context()); err != nil {
				return err
			}
			if printSummary {
				return r.printSummary(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSummary, "summary", true, "Print the per-region summary table after a successful run")
	return cmd
}

// run is a single pipeline execution.
type run struct {
	id      string
	started time.Time
	cfg     *config.Config
	logger  *slog.Logger

	cleaner *mobility.Transformer
	summary *aggregate.GroupBy
	logURI  string
	stats   pipeline.Stats
}

func newRun(cfg *config.Config, logger *slog.Logger) *run {
	id := uuid.NewString()
	return &run{
		id:      id,
		started: time.Now(),
		cfg:     cfg,
		logger:  logger.With("run_id", id),
		cleaner: mobility.NewTransformer(),
		summary: aggregate.NewGroupBy(mobility.ColCode).
			Count(summaryRecords).
			Min(mobility.ColAverageChange, summaryMin).
			Avg(mobility.ColAverageChange, summaryMean).
			Max(mobility.ColAverageChange, summaryMax),
	}
}

// execute runs the pipeline. The log and table are only published when
// every record has been processed; otherwise both keep their prior state.
func (r *run) execute(ctx context.Context) error {
	r.logger.Info("run started",
		"mode", r.cfg.Mode,
		"source", r.cfg.Source.Kind,
		"table", r.cfg.Table.Backend,
		"limit", r.cfg.EffectiveLimit())

	chain, err := r.transformer()
	if err != nil {
		return err
	}
	filters, err := r.filters()
	if err != nil {
		return err
	}

	source, err := r.openSource(ctx)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	sinks, err := r.openSinks(ctx)
	if err != nil {
		source.Close()
		return err
	}

	builder := pipeline.NewPipeline().
		From(source).
		Transform(chain).
		To(sinks...).
		WithWorkers(r.cfg.EffectiveWorkers()).
		WithChunkSize(r.cfg.Pipeline.ChunkSize).
		WithLogger(r.logger)
	for _, f := range filters {
		builder.Filter(f)
	}
	p, err := builder.Build()
	if err != nil {
		source.Close()
		discardSinks(sinks)
		return err
	}

	if err := p.Execute(ctx); err != nil {
		return fmt.Errorf("run %s: %w", r.id, err)
	}
	r.stats = p.Stats()

	cs := r.cleaner.Stats()
	r.logger.Info("run committed",
		"read", r.stats.Read,
		"written", r.stats.Written,
		"dropped_insufficient", cs.DroppedInsufficient,
		"dropped_excluded", cs.DroppedExcluded,
		"filtered", r.stats.Filtered,
		"log", r.logURI,
		"duration", r.stats.Duration)
	for _, row := range r.summary.Results() {
		r.logger.Debug("region summary",
			mobility.ColCode, row[mobility.ColCode],
			summaryRecords, row[summaryRecords],
			summaryMin, row[summaryMin],
			summaryMean, row[summaryMean],
			summaryMax, row[summaryMax])
	}
	return nil
}

// transformer builds the per-record chain. File and object sources are
// renamed, projected and trimmed first; every source is validated before
// the cleaning rules run.
func (r *run) transformer() (core.Transformer, error) {
	var steps []core.Transformer

	switch r.cfg.Source.Kind {
	case config.SourceFile, config.SourceS3:
		rename, err := r.cfg.Source.RenameMap()
		if err != nil {
			return nil, err
		}
		if len(rename) > 0 {
			steps = append(steps, transform.Rename(rename))
		}
		steps = append(steps,
			transform.Select(mobility.SourceColumns()...),
			transform.TrimSpace(),
			transform.NullIfEmpty(),
		)
	}

	steps = append(steps, validators.Gate(validators.SourceValidator()), r.cleaner)
	return transform.Chain(steps...), nil
}

// filters restricts the cleaned records to the configured codes and dates.
func (r *run) filters() ([]core.Filter, error) {
	var filters []core.Filter
	if len(r.cfg.Source.Codes) > 0 {
		filters = append(filters, filter.In(mobility.ColCode, r.cfg.Source.Codes...))
	}
	since, until, err := r.cfg.Source.DateWindow()
	if err != nil {
		return nil, err
	}
	if !since.IsZero() || !until.IsZero() {
		filters = append(filters, filter.DateWindow(mobility.ColDate, since, until))
	}
	return filters, nil
}

func (r *run) openSource(ctx context.Context) (core.DataSource, error) {
	s := r.cfg.Source
	limit := r.cfg.EffectiveLimit()

	switch s.Kind {
	case config.SourcePostgres:
		query, err := sourceQuery(r.cfg)
		if err != nil {
			return nil, err
		}
		opts := []readers.PostgresReaderOption{
			readers.WithPostgresDSN(s.DSN),
			readers.WithPostgresQuery(query),
			readers.WithPostgresQueryTimeout(s.Timeout),
		}
		if r.cfg.Mode == config.ModeFull {
			// Unbounded reads stream through a server-side cursor.
			opts = append(opts,
				readers.WithPostgresCursor(true, "mobility_source"),
				readers.WithPostgresBatchSize(r.cfg.Pipeline.ChunkSize))
		}
		reader, err := readers.NewPostgresReader(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return reader, nil

	case config.SourceBigQuery:
		query, err := sourceQuery(r.cfg)
		if err != nil {
			return nil, err
		}
		reader, err := readers.NewBigQueryReader(ctx,
			readers.WithBigQueryProject(s.Project),
			readers.WithBigQueryLocation(s.Location),
			readers.WithBigQueryCredentialsFile(s.CredentialsFile),
			readers.WithBigQueryQuery(query),
		)
		if err != nil {
			return nil, err
		}
		return reader, nil

	case config.SourceMongo:
		reader, err := readers.NewMongoReader(ctx,
			readers.WithMongoURI(s.URI),
			readers.WithMongoDB(s.Database),
			readers.WithMongoCollection(s.Collection),
			readers.WithMongoFields(mobility.SourceColumns()...),
			readers.WithMongoSort(mobility.SourceOrder...),
			readers.WithMongoLimit(int64(limit)),
			readers.WithMongoTimeout(s.Timeout),
		)
		if err != nil {
			return nil, err
		}
		return reader, nil

	case config.SourceFile:
		reader, err := readers.NewFileReader(s.Path)
		if err != nil {
			return nil, err
		}
		return readers.NewLimitReader(reader, limit), nil

	case config.SourceS3:
		s3 := r.cfg.Cloud.S3
		opts := []readers.ReaderOptionS3{
			readers.WithS3Bucket(s.Bucket),
			readers.WithS3Prefix(s.Prefix),
			readers.WithS3Suffix(s.Suffix),
			readers.WithS3Region(s3.Region),
			readers.WithS3Endpoint(s3.Endpoint),
			readers.WithS3PathStyle(s3.PathStyle),
			readers.WithS3SortOrder(readers.SortByName),
		}
		if s3.AccessKey != "" {
			opts = append(opts, readers.WithS3Credentials(aws.Credentials{
				AccessKeyID:     s3.AccessKey,
				SecretAccessKey: s3.SecretKey,
				Source:          "mobility config",
			}))
		}
		reader, err := readers.NewS3Reader(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return readers.NewLimitReader(reader, limit), nil

	default:
		return nil, fmt.Errorf("unsupported source kind %q", s.Kind)
	}
}

// openSinks opens the sinks in commit order: the log first, then the
// optional export and the summary, and the table last.
func (r *run) openSinks(ctx context.Context) (sinks []core.DataSink, err error) {
	defer func() {
		if err != nil {
			discardSinks(sinks)
		}
	}()

	format, err := writers.ParseFormat(r.cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	logSink, err := r.openObject(ctx, r.cfg.Output.Log, format)
	if err != nil {
		return sinks, fmt.Errorf("open log: %w", err)
	}
	sinks = append(sinks, logSink)
	r.logURI = logSink.Location()

	if r.cfg.Export.Parquet != "" {
		export, err := r.openObject(ctx, r.cfg.Export.Parquet, writers.FormatParquet)
		if err != nil {
			return sinks, fmt.Errorf("open export: %w", err)
		}
		sinks = append(sinks, export)
	}

	sinks = append(sinks, r.summary)

	table, err := r.openTable(ctx)
	if err != nil {
		return sinks, fmt.Errorf("open table: %w", err)
	}
	if table != nil {
		sinks = append(sinks, table)
	}
	return sinks, nil
}

func (r *run) openObject(ctx context.Context, uri string, format writers.Format) (*writers.ObjectSink, error) {
	loc, err := writers.ParseLocation(writers.ExpandLocation(uri, r.id, r.started), r.locationOptions(format)...)
	if err != nil {
		return nil, err
	}
	return writers.NewObjectSink(ctx, loc, format, mobility.TableSchema)
}

func (r *run) locationOptions(format writers.Format) []writers.LocationOption {
	cloud := r.cfg.Cloud
	opts := []writers.LocationOption{
		writers.WithContentType(format.ContentType()),
		writers.WithS3Config(cloud.S3.Region, cloud.S3.Endpoint, cloud.S3.PathStyle),
	}
	if cloud.S3.AccessKey != "" {
		opts = append(opts, writers.WithS3Credentials(cloud.S3.AccessKey, cloud.S3.SecretKey))
	}
	if cloud.GCS.CredentialsFile != "" {
		opts = append(opts, writers.WithGCSClientOptions(option.WithCredentialsFile(cloud.GCS.CredentialsFile)))
	}
	switch {
	case cloud.Azure.ConnectionString != "":
		opts = append(opts, writers.WithAzureConnectionString(cloud.Azure.ConnectionString))
	case cloud.Azure.Account != "":
		opts = append(opts, writers.WithAzureSharedKey(cloud.Azure.Account, cloud.Azure.Key, cloud.Azure.ServiceURL))
	}
	return opts
}

// openTable returns the truncate-and-replace writer for the backend, or nil
// when no table is configured.
func (r *run) openTable(ctx context.Context) (core.DataSink, error) {
	t := r.cfg.Table

	switch t.Backend {
	case config.TablePostgres:
		w, err := writers.NewPostgresWriter(ctx,
			writers.WithPostgresDSN(t.DSN),
			writers.WithTableName(t.Dataset, t.Name),
			writers.WithColumns(mobility.TableSchema),
			writers.WithPostgresBatchSize(t.BatchSize),
			writers.WithPostgresQueryTimeout(t.Timeout),
			writers.WithCreateTable(true),
		)
		if err != nil {
			return nil, err
		}
		return w, nil

	case config.TableMySQL:
		w, err := writers.NewMySQLWriter(ctx,
			writers.WithMySQLDSN(t.DSN),
			writers.WithMySQLTable(t.Dataset, t.Name),
			writers.WithMySQLColumns(mobility.TableSchema),
			writers.WithMySQLBatchSize(t.BatchSize),
			writers.WithMySQLQueryTimeout(t.Timeout),
		)
		if err != nil {
			return nil, err
		}
		return w, nil

	case config.TableBigQuery:
		w, err := writers.NewBigQueryWriter(ctx,
			writers.WithBigQueryProject(t.Project),
			writers.WithBigQueryLocation(t.Location),
			writers.WithBigQueryCredentialsFile(t.CredentialsFile),
			writers.WithBigQueryTable(t.Dataset, t.Name),
			writers.WithBigQueryColumns(mobility.TableSchema),
		)
		if err != nil {
			return nil, err
		}
		return w, nil

	case config.TableMongo:
		w, err := writers.NewMongoWriter(ctx,
			writers.WithMongoURI(t.URI),
			writers.WithMongoCollection(t.Dataset, t.Name),
			writers.WithMongoColumns(mobility.TableSchema),
			writers.WithMongoBatchSize(t.BatchSize),
			writers.WithMongoTimeout(t.Timeout),
		)
		if err != nil {
			return nil, err
		}
		return w, nil

	case config.TableNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported table backend %q", t.Backend)
	}
}

// discardSinks aborts and closes sinks that never reached a pipeline.
func discardSinks(sinks []core.DataSink) {
	for _, sink := range sinks {
		if ts, ok := sink.(core.TransactionalSink); ok {
			ts.Abort()
		}
		sink.Close()
	}
}
