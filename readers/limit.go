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
	"io"

	"github.com/aaronlmathis/mobility/core"
)

// LimitReader returns at most n records from the wrapped source. Sources that
// can push the limit into their query should do so instead.
type LimitReader struct {
	source    core.DataSource
	remaining int
}

// NewLimitReader wraps source. A non-positive n returns source unchanged.
func NewLimitReader(source core.DataSource, n int) core.DataSource {
	if n <= 0 {
		return source
	}
	return &LimitReader{source: source, remaining: n}
}

// Read implements the DataSource interface.
func (l *LimitReader) Read(ctx context.Context) (core.Record, error) {
	if l.remaining <= 0 {
		return nil, io.EOF
	}
	record, err := l.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	l.remaining--
	return record, nil
}

// Close implements the DataSource interface.
func (l *LimitReader) Close() error {
	return l.source.Close()
}
