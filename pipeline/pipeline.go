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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/aaronlmathis/mobility/core"
	"golang.org/x/sync/errgroup"
)

// Package pipeline provides the fluent, streaming ETL pipeline used to move
// mobility records from a source through validation, transformation and
// filtering into one or more sinks.
//
// Records are read in chunks. Each chunk is processed by a bounded worker pool
// and the results are written to the sinks in source order. Sinks that
// implement core.TransactionalSink are committed, in registration order, only
// after every record has been written and flushed; on any failure or
// cancellation they are aborted so their destinations keep their previous state.
//
// Example usage:
//
//	p, err := pipeline.NewPipeline().
//	    From(reader).
//	    Transform(mobility.NewTransformer()).
//	    To(logSink, tableSink).
//	    WithWorkers(4).
//	    Build()
//	if err != nil { return err }
//	if err := p.Execute(ctx); err != nil { return err }

const (
	// DefaultChunkSize is the number of records read before a chunk is processed.
	DefaultChunkSize = 500
)

// PipelineBuilder provides a fluent API for constructing pipelines.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			validators:   make([]core.Validator, 0),
			transformers: make([]core.Transformer, 0),
			filters:      make([]core.Filter, 0),
			strategy:     core.FailFast,
			workers:      1,
			chunkSize:    DefaultChunkSize,
			logger:       slog.New(slog.DiscardHandler),
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source core.DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Validate adds a Validator that runs before any transformer.
func (pb *PipelineBuilder) Validate(validator core.Validator) *PipelineBuilder {
	pb.pipeline.validators = append(pb.pipeline.validators, validator)
	return pb
}

// Transform adds a Transformer to the pipeline. Transformers run in the order
// they are added; one returning a nil record drops it.
func (pb *PipelineBuilder) Transform(transformer core.Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter, applied after all transformers.
func (pb *PipelineBuilder) Filter(filter core.Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record core.Record) (core.Record, error)) *PipelineBuilder {
	return pb.Transform(core.TransformFunc(fn))
}

// Where adds a filtering condition using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record core.Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(core.FilterFunc(fn))
}

// To adds one or more sinks. Every record that survives processing is written
// to every sink. Transactional sinks commit in the order they were added.
func (pb *PipelineBuilder) To(sinks ...core.DataSink) *PipelineBuilder {
	pb.pipeline.sinks = append(pb.pipeline.sinks, sinks...)
	return pb
}

// WithWorkers sets the number of records processed concurrently within a chunk.
// Values below one select runtime.NumCPU().
func (pb *PipelineBuilder) WithWorkers(n int) *PipelineBuilder {
	if n < 1 {
		n = runtime.NumCPU()
	}
	pb.pipeline.workers = n
	return pb
}

// WithChunkSize sets how many records are read before a chunk is processed.
func (pb *PipelineBuilder) WithChunkSize(n int) *PipelineBuilder {
	if n > 0 {
		pb.pipeline.chunkSize = n
	}
	return pb
}

// WithErrorStrategy sets the error handling strategy.
func (pb *PipelineBuilder) WithErrorStrategy(strategy core.ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler, consulted by SkipErrors and CollectErrors.
func (pb *PipelineBuilder) WithErrorHandler(handler core.ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// WithLogger sets the structured logger. The default discards everything.
func (pb *PipelineBuilder) WithLogger(logger *slog.Logger) *PipelineBuilder {
	if logger != nil {
		pb.pipeline.logger = logger
	}
	return pb
}

// Build validates and constructs the Pipeline.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if len(pb.pipeline.sinks) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one data sink")
	}
	return pb.pipeline, nil
}

// Pipeline is a configured, single-use data processing pipeline.
type Pipeline struct {
	validators   []core.Validator
	transformers []core.Transformer
	filters      []core.Filter
	source       core.DataSource
	sinks        []core.DataSink
	strategy     core.ErrorStrategy
	errorHandler core.ErrorHandler
	workers      int
	chunkSize    int
	logger       *slog.Logger

	stats Stats
}

// outcome is the result of processing one record within a chunk.
type outcome struct {
	record core.Record
	stage  Stage
	err    error
}

// Execute runs the pipeline to completion. It returns nil only after every
// transactional sink has committed. The source and all sinks are closed before
// Execute returns.
func (p *Pipeline) Execute(ctx context.Context) (err error) {
	start := time.Now()
	p.stats = Stats{}
	p.logger.Info("pipeline started", "workers", p.workers, "chunk_size", p.chunkSize, "sinks", len(p.sinks))

	committed := false
	defer func() {
		if !committed {
			p.abortAll()
		}
		p.closeAll()
		p.stats.Duration = time.Since(start)
		if err != nil {
			p.logger.Error("pipeline failed", "error", err, "read", p.stats.Read, "written", p.stats.Written)
			return
		}
		p.logger.Info("pipeline finished",
			"read", p.stats.Read,
			"written", p.stats.Written,
			"dropped", p.stats.Dropped,
			"filtered", p.stats.Filtered,
			"errors", len(p.stats.Errors),
			"duration", p.stats.Duration)
	}()

	for chunkIndex := 0; ; chunkIndex++ {
		chunk, eof, err := p.readChunk(ctx)
		if err != nil {
			return err
		}
		if len(chunk) > 0 {
			if err := p.runChunk(ctx, chunk); err != nil {
				return err
			}
			p.logger.Debug("chunk processed", "chunk", chunkIndex, "records", len(chunk))
		}
		if eof {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Flush(); err != nil {
			return &PipelineError{Stage: StageFlush, Err: err}
		}
	}
	for i, sink := range p.sinks {
		ts, ok := sink.(core.TransactionalSink)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ts.Commit(ctx); err != nil {
			return &PipelineError{Stage: StageCommit, Err: fmt.Errorf("sink %d: %w", i, err)}
		}
		p.logger.Debug("sink committed", "sink", i)
	}
	committed = true
	return nil
}

// Stats returns a copy of the statistics gathered by the last Execute call.
func (p *Pipeline) Stats() Stats {
	stats := p.stats
	stats.Errors = append([]error(nil), p.stats.Errors...)
	return stats
}

// readChunk reads up to chunkSize records. An empty record is passed on so
// validation can reject it. eof reports that the
// source is exhausted.
func (p *Pipeline) readChunk(ctx context.Context) (chunk []core.Record, eof bool, err error) {
	chunk = make([]core.Record, 0, p.chunkSize)
	for len(chunk) < p.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		record, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			return chunk, true, nil
		}
		if err != nil {
			if herr := p.handleError(ctx, record, &PipelineError{Stage: StageRead, Err: err}); herr != nil {
				return nil, false, herr
			}
			continue
		}
		if record == nil {
			if herr := p.handleError(ctx, nil, &PipelineError{Stage: StageRead, Err: errors.New("source returned a nil record")}); herr != nil {
				return nil, false, herr
			}
			continue
		}
		p.stats.Read++
		chunk = append(chunk, record)
	}
	return chunk, false, nil
}

// runChunk processes chunk on the worker pool, then handles errors and writes
// surviving records in source order.
func (p *Pipeline) runChunk(ctx context.Context, chunk []core.Record) error {
	results := make([]outcome, len(chunk))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range chunk {
		g.Go(func() error {
			results[i] = p.process(gctx, chunk[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, res := range results {
		if res.err != nil {
			if err := p.handleError(ctx, chunk[i], &PipelineError{Stage: res.stage, Err: res.err}); err != nil {
				return err
			}
			continue
		}
		if res.record == nil {
			switch res.stage {
			case StageFilter:
				p.stats.Filtered++
			default:
				p.stats.Dropped++
			}
			continue
		}
		for j, sink := range p.sinks {
			if err := sink.Write(ctx, res.record); err != nil {
				// A partially written record cannot be skipped safely.
				return &PipelineError{Stage: StageWrite, Err: fmt.Errorf("sink %d: %w", j, err)}
			}
		}
		p.stats.Written++
	}
	return nil
}

// process runs one record through validators, transformers and filters. A nil
// record without error means the record was dropped at the reported stage.
func (p *Pipeline) process(ctx context.Context, record core.Record) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{stage: StageTransform, err: err}
	}
	for _, v := range p.validators {
		if err := v.Validate(ctx, record); err != nil {
			return outcome{stage: StageValidate, err: err}
		}
	}

	current := record
	for _, t := range p.transformers {
		transformed, err := t.Transform(ctx, current)
		if err != nil {
			return outcome{stage: StageTransform, err: err}
		}
		if transformed == nil {
			return outcome{stage: StageTransform}
		}
		current = transformed
	}

	for _, f := range p.filters {
		include, err := f.ShouldInclude(ctx, current)
		if err != nil {
			return outcome{stage: StageFilter, err: err}
		}
		if !include {
			return outcome{stage: StageFilter}
		}
	}
	return outcome{record: current}
}

// handleError applies the error strategy. A non-nil return stops the pipeline.
func (p *Pipeline) handleError(ctx context.Context, record core.Record, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch p.strategy {
	case core.FailFast:
		return err
	case core.SkipErrors:
		p.logger.Warn("record skipped", "error", err)
		p.stats.Skipped++
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	case core.CollectErrors:
		p.stats.Errors = append(p.stats.Errors, err)
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, err)
		}
		return nil
	default:
		return err
	}
}

func (p *Pipeline) abortAll() {
	for i, sink := range p.sinks {
		ts, ok := sink.(core.TransactionalSink)
		if !ok {
			continue
		}
		if err := ts.Abort(); err != nil {
			p.logger.Warn("sink abort failed", "sink", i, "error", err)
		}
	}
}

func (p *Pipeline) closeAll() {
	if err := p.source.Close(); err != nil {
		p.logger.Warn("source close failed", "error", err)
	}
	for i, sink := range p.sinks {
		if err := sink.Close(); err != nil {
			p.logger.Warn("sink close failed", "sink", i, "error", err)
		}
	}
}
