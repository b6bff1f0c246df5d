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

package mobility

import (
	"context"
	"sync/atomic"

	"github.com/aaronlmathis/mobility/core"
)

// TransformerStats counts the outcome of every record seen by a Transformer.
type TransformerStats struct {
	Seen                int64
	Admitted            int64
	DroppedInsufficient int64
	DroppedExcluded     int64
	Malformed           int64
}

// Dropped returns the number of records rejected by the validity rules.
func (s TransformerStats) Dropped() int64 {
	return s.DroppedInsufficient + s.DroppedExcluded
}

// Transformer adapts Decode and Transform to the core.Transformer interface.
// Dropped records come back as a nil core.Record. It is safe for concurrent use.
type Transformer struct {
	seen         atomic.Int64
	admitted     atomic.Int64
	insufficient atomic.Int64
	excluded     atomic.Int64
	malformed    atomic.Int64
}

// NewTransformer returns a Transformer with zeroed counters.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform implements core.Transformer.
func (t *Transformer) Transform(ctx context.Context, record core.Record) (core.Record, error) {
	t.seen.Add(1)

	raw, err := Decode(record)
	if err != nil {
		t.malformed.Add(1)
		return nil, err
	}

	cleaned, verdict := Transform(raw)
	switch verdict {
	case DroppedInsufficient:
		t.insufficient.Add(1)
		return nil, nil
	case DroppedExcluded:
		t.excluded.Add(1)
		return nil, nil
	}

	t.admitted.Add(1)
	return cleaned.Record(), nil
}

// Stats returns a snapshot of the counters.
func (t *Transformer) Stats() TransformerStats {
	return TransformerStats{
		Seen:                t.seen.Load(),
		Admitted:            t.admitted.Load(),
		DroppedInsufficient: t.insufficient.Load(),
		DroppedExcluded:     t.excluded.Load(),
		Malformed:           t.malformed.Load(),
	}
}
