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
	"fmt"
	"time"
)

// Stage names the pipeline step at which a record was dropped or failed.
type Stage string

const (
	StageRead      Stage = "read"
	StageValidate  Stage = "validate"
	StageTransform Stage = "transform"
	StageFilter    Stage = "filter"
	StageWrite     Stage = "write"
	StageFlush     Stage = "flush"
	StageCommit    Stage = "commit"
)

// PipelineError wraps an error with the stage that produced it.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Stats summarises one pipeline execution.
type Stats struct {
	// Read is the number of non-empty records returned by the source.
	Read int64
	// Written is the number of records written to every sink.
	Written int64
	// Dropped counts records a transformer returned as nil.
	Dropped int64
	// Filtered counts records rejected by a filter.
	Filtered int64
	// Skipped counts failed records ignored under SkipErrors.
	Skipped int64
	// Errors holds the errors gathered under CollectErrors.
	Errors   []error
	Duration time.Duration
}
