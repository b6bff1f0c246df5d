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
	"sync"

	"github.com/aaronlmathis/mobility/core"
)

// sliceSource replays a fixed set of records.
type sliceSource struct {
	records []core.Record
	pos     int
	closed  bool
	failAt  int // 1-based; 0 disables
}

func newSliceSource(records ...core.Record) *sliceSource {
	return &sliceSource{records: records}
}

func (s *sliceSource) Read(ctx context.Context) (core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	s.pos++
	if s.failAt == s.pos {
		return nil, errors.New("read failed")
	}
	return s.records[s.pos-1].Clone(), nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// memTable is a table whose contents are replaced wholesale by each commit.
type memTable struct {
	mu   sync.Mutex
	rows []core.Record
}

func (t *memTable) Rows() []core.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Record(nil), t.rows...)
}

// replaceSink stages writes and swaps them into a memTable on Commit.
type replaceSink struct {
	table  *memTable
	staged []core.Record
	writes int
	// failWrite is the 1-based write that fails; 0 disables.
	failWrite  int
	failCommit bool
	committed  bool
	aborted    bool
	closed     bool
	onCommit   func()
}

func newReplaceSink(table *memTable) *replaceSink {
	return &replaceSink{table: table}
}

func (s *replaceSink) Write(ctx context.Context, record core.Record) error {
	s.writes++
	if s.failWrite == s.writes {
		return errors.New("write failed")
	}
	s.staged = append(s.staged, record)
	return nil
}

func (s *replaceSink) Flush() error { return nil }

func (s *replaceSink) Close() error {
	s.closed = true
	return nil
}

func (s *replaceSink) Commit(ctx context.Context) error {
	if s.failCommit {
		return errors.New("commit failed")
	}
	s.table.mu.Lock()
	s.table.rows = s.staged
	s.table.mu.Unlock()
	s.committed = true
	if s.onCommit != nil {
		s.onCommit()
	}
	return nil
}

func (s *replaceSink) Abort() error {
	s.staged = nil
	s.aborted = true
	return nil
}

// listSink is a plain, non-transactional sink.
type listSink struct {
	records []core.Record
	flushed bool
	closed  bool
}

func (s *listSink) Write(ctx context.Context, record core.Record) error {
	s.records = append(s.records, record)
	return nil
}

func (s *listSink) Flush() error {
	s.flushed = true
	return nil
}

func (s *listSink) Close() error {
	s.closed = true
	return nil
}

func mobilityRow(code interface{}, country, date string, changes ...interface{}) core.Record {
	rec := core.Record{
		"country_region_code": code,
		"country_region":      country,
		"date":                date,
	}
	names := []string{
		"retail_and_recreation", "grocery_and_pharmacy", "parks",
		"transit_stations", "workplaces", "residential",
	}
	for i, name := range names {
		var v interface{}
		if i < len(changes) {
			v = changes[i]
		}
		rec[name+"_percent_change_from_baseline"] = v
	}
	return rec
}

func numberedRows(n int) []core.Record {
	rows := make([]core.Record, n)
	for i := range rows {
		rows[i] = mobilityRow("US", fmt.Sprintf("Region %03d", i), "2020-03-01", int64(i), int64(i))
	}
	return rows
}
