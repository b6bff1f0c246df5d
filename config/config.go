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

package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/aaronlmathis/mobility/core"
)

// Package config defines the run configuration of the mobility pipeline and
// loads it from a config file, MOBILITY_* environment variables and command
// line flags.

// Execution modes.
const (
	// ModeLocal is a bounded run for development: a row cap and one worker.
	ModeLocal = "local"
	// ModeFull processes the whole source with one worker per CPU.
	ModeFull = "full"

	// LocalLimit caps the source in local mode when no limit is set.
	LocalLimit = 100
)

// Source kinds.
const (
	SourcePostgres = "postgres"
	SourceBigQuery = "bigquery"
	SourceMongo    = "mongo"
	SourceFile     = "file"
	SourceS3       = "s3"
)

// Table backends.
const (
	TablePostgres = "postgres"
	TableMySQL    = "mysql"
	TableBigQuery = "bigquery"
	TableMongo    = "mongo"
	TableNone     = "none"
)

// Config is the full run configuration.
type Config struct {
	Mode      string         `mapstructure:"mode"`
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	Source    SourceConfig   `mapstructure:"source"`
	Output    OutputConfig   `mapstructure:"output"`
	Table     TableConfig    `mapstructure:"table"`
	Export    ExportConfig   `mapstructure:"export"`
	Pipeline  PipelineConfig `mapstructure:"pipeline"`
	Cloud     CloudConfig    `mapstructure:"cloud"`
}

// SourceConfig selects and parameterizes the record reader.
type SourceConfig struct {
	Kind string `mapstructure:"kind"`
	// Table is the staging table (SQL and BigQuery sources).
	Table string `mapstructure:"table"`
	// Query overrides the generated source query. Local mode still caps it
	// at the effective limit.
	Query string `mapstructure:"query"`
	// Limit caps the number of source rows. Zero defers to the mode.
	Limit int `mapstructure:"limit"`

	DSN             string        `mapstructure:"dsn"`
	Project         string        `mapstructure:"project"`
	Location        string        `mapstructure:"location"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	URI             string        `mapstructure:"uri"`
	Database        string        `mapstructure:"database"`
	Collection      string        `mapstructure:"collection"`
	Path            string        `mapstructure:"path"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	Suffix          string        `mapstructure:"suffix"`
	Timeout         time.Duration `mapstructure:"timeout"`

	// Rename lists "header=column" pairs mapping source headers to raw
	// column names for file and S3 sources. Pairs keep the header's case.
	Rename []string `mapstructure:"rename"`
	// Codes restricts the output to these normalized region codes.
	Codes []string `mapstructure:"codes"`
	// Since and Until bound the output dates (YYYY-MM-DD, inclusive).
	Since string `mapstructure:"since"`
	Until string `mapstructure:"until"`
}

// OutputConfig describes the text log.
type OutputConfig struct {
	// Log is the log object URI. {run_id} and {timestamp} are expanded.
	Log    string `mapstructure:"log"`
	Format string `mapstructure:"format"`
}

// TableConfig describes the published table.
type TableConfig struct {
	Backend string `mapstructure:"backend"`
	// Dataset is the schema (Postgres), database (MySQL, MongoDB) or dataset (BigQuery).
	Dataset         string        `mapstructure:"dataset"`
	Name            string        `mapstructure:"name"`
	DSN             string        `mapstructure:"dsn"`
	URI             string        `mapstructure:"uri"`
	Project         string        `mapstructure:"project"`
	Location        string        `mapstructure:"location"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	BatchSize       int           `mapstructure:"batch_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// ExportConfig describes the optional Parquet copy. An empty URI disables it.
type ExportConfig struct {
	Parquet string `mapstructure:"parquet"`
}

// PipelineConfig tunes execution.
type PipelineConfig struct {
	// Workers is the worker pool size. Zero defers to the mode.
	Workers   int `mapstructure:"workers"`
	ChunkSize int `mapstructure:"chunk_size"`
}

// CloudConfig carries object store credentials used by the log and export URIs.
type CloudConfig struct {
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	Account          string `mapstructure:"account"`
	Key              string `mapstructure:"key"`
	ServiceURL       string `mapstructure:"service_url"`
	ConnectionString string `mapstructure:"connection_string"`
}

// EffectiveLimit returns the source row cap: the configured limit, or
// LocalLimit in local mode. Zero means unbounded.
func (c *Config) EffectiveLimit() int {
	if c.Source.Limit > 0 {
		return c.Source.Limit
	}
	if c.Mode == ModeLocal {
		return LocalLimit
	}
	return 0
}

// EffectiveWorkers returns the worker pool size.
func (c *Config) EffectiveWorkers() int {
	if c.Pipeline.Workers > 0 {
		return c.Pipeline.Workers
	}
	if c.Mode == ModeFull {
		return runtime.NumCPU()
	}
	return 1
}

// RenameMap parses Rename into a header to column mapping.
func (s SourceConfig) RenameMap() (map[string]string, error) {
	if len(s.Rename) == 0 {
		return nil, nil
	}
	mapping := make(map[string]string, len(s.Rename))
	for _, pair := range s.Rename {
		from, to, ok := strings.Cut(pair, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("source.rename: expected header=column, got %q", pair)
		}
		mapping[from] = to
	}
	return mapping, nil
}

// DateWindow parses Since and Until. Unset bounds are zero dates.
func (s SourceConfig) DateWindow() (since, until core.Date, err error) {
	if s.Since != "" {
		if since, err = core.ParseDate(s.Since); err != nil {
			return core.Date{}, core.Date{}, fmt.Errorf("source.since: %w", err)
		}
	}
	if s.Until != "" {
		if until, err = core.ParseDate(s.Until); err != nil {
			return core.Date{}, core.Date{}, fmt.Errorf("source.until: %w", err)
		}
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return core.Date{}, core.Date{}, errors.New("source.until is before source.since")
	}
	return since, until, nil
}

// Validate checks that the configuration describes a runnable pipeline.
func (c *Config) Validate() error {
	var errs []error

	switch c.Mode {
	case ModeLocal, ModeFull:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeLocal, ModeFull, c.Mode))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.Source.Limit < 0 {
		errs = append(errs, errors.New("source.limit must not be negative"))
	}

	s := c.Source
	switch s.Kind {
	case SourcePostgres:
		errs = appendMissing(errs, "source.dsn", s.DSN)
		if s.Query == "" {
			errs = appendMissing(errs, "source.table", s.Table)
		}
	case SourceBigQuery:
		errs = appendMissing(errs, "source.project", s.Project)
		if s.Query == "" {
			errs = appendMissing(errs, "source.table", s.Table)
		}
	case SourceMongo:
		errs = appendMissing(errs, "source.database", s.Database)
		errs = appendMissing(errs, "source.collection", s.Collection)
	case SourceFile:
		errs = appendMissing(errs, "source.path", s.Path)
	case SourceS3:
		errs = appendMissing(errs, "source.bucket", s.Bucket)
	default:
		errs = append(errs, fmt.Errorf("source.kind %q is not supported", s.Kind))
	}
	if _, err := s.RenameMap(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := s.DateWindow(); err != nil {
		errs = append(errs, err)
	}

	errs = appendMissing(errs, "output.log", c.Output.Log)
	switch strings.ToLower(c.Output.Format) {
	case "jsonl", "json", "csv":
	default:
		errs = append(errs, fmt.Errorf("output.format must be jsonl or csv, got %q", c.Output.Format))
	}

	t := c.Table
	switch t.Backend {
	case TablePostgres, TableMySQL:
		errs = appendMissing(errs, "table.dsn", t.DSN)
		errs = appendMissing(errs, "table.name", t.Name)
	case TableBigQuery:
		errs = appendMissing(errs, "table.project", t.Project)
		errs = appendMissing(errs, "table.dataset", t.Dataset)
		errs = appendMissing(errs, "table.name", t.Name)
	case TableMongo:
		errs = appendMissing(errs, "table.dataset", t.Dataset)
		errs = appendMissing(errs, "table.name", t.Name)
	case TableNone:
	default:
		errs = append(errs, fmt.Errorf("table.backend %q is not supported", t.Backend))
	}
	if t.BatchSize <= 0 {
		errs = append(errs, errors.New("table.batch_size must be positive"))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, errors.New("pipeline.workers must not be negative"))
	}
	if c.Pipeline.ChunkSize <= 0 {
		errs = append(errs, errors.New("pipeline.chunk_size must be positive"))
	}

	return errors.Join(errs...)
}

func appendMissing(errs []error, key, value string) []error {
	if strings.TrimSpace(value) == "" {
		return append(errs, fmt.Errorf("%s is required", key))
	}
	return errs
}
