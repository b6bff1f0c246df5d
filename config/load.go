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
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MOBILITY_TABLE__DSN.
const EnvPrefix = "MOBILITY"

// defaults are applied before the config file, environment and flags.
var defaults = map[string]interface{}{
	"mode":                          ModeLocal,
	"log_level":                     "info",
	"log_format":                    "text",
	"source.kind":                   SourcePostgres,
	"source.table":                  "",
	"source.query":                  "",
	"source.limit":                  0,
	"source.dsn":                    "",
	"source.project":                "",
	"source.location":               "",
	"source.credentials_file":       "",
	"source.uri":                    "mongodb://localhost:27017",
	"source.database":               "",
	"source.collection":             "",
	"source.path":                   "",
	"source.bucket":                 "",
	"source.prefix":                 "",
	"source.suffix":                 "",
	"source.timeout":                30 * time.Second,
	"source.codes":                  []string{},
	"source.rename":                 []string{},
	"source.since":                  "",
	"source.until":                  "",
	"output.log":                    "output/{timestamp}/mobility.jsonl",
	"output.format":                 "jsonl",
	"table.backend":                 TablePostgres,
	"table.dataset":                 "",
	"table.name":                    "mobility",
	"table.dsn":                     "",
	"table.uri":                     "mongodb://localhost:27017",
	"table.project":                 "",
	"table.location":                "",
	"table.credentials_file":        "",
	"table.batch_size":              100,
	"table.timeout":                 30 * time.Second,
	"export.parquet":                "",
	"pipeline.workers":              0,
	"pipeline.chunk_size":           500,
	"cloud.s3.region":               "",
	"cloud.s3.endpoint":             "",
	"cloud.s3.path_style":           false,
	"cloud.s3.access_key":           "",
	"cloud.s3.secret_key":           "",
	"cloud.gcs.credentials_file":    "",
	"cloud.azure.account":           "",
	"cloud.azure.key":               "",
	"cloud.azure.service_url":       "",
	"cloud.azure.connection_string": "",
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"mode":      "mode",
	"log-level": "log_level",
	"limit":     "source.limit",
	"workers":   "pipeline.workers",
}

// Load reads the configuration. cfgFile names an explicit config file;
// otherwise mobility.yaml (or .json, .toml) is looked up in the working
// directory and /etc/mobility, and a missing file is not an error. Values
// are resolved in the order flags, environment, file, defaults. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("mobility")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/mobility/")
	}

	v.SetEnvPrefix(EnvPrefix) // env vars like MOBILITY_SOURCE__DSN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
