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
	"fmt"
	"strings"
)

// SourceOrder is the ordering the reader must apply: date, then region name.
var SourceOrder = []string{ColDate, ColCountryRegion}

// SourceQuery builds the selection query for the staging table.
type SourceQuery struct {
	// Table is the fully qualified source table, used verbatim.
	Table string
	// Override replaces the generated selection. It must apply SourceOrder itself.
	Override string
	// Limit caps the number of rows for bounded runs. Zero means no cap.
	Limit int
}

// SQL renders the query. A capped override is wrapped in a subquery so the
// bound still applies.
func (q SourceQuery) SQL() string {
	if override := strings.TrimRight(strings.TrimSpace(q.Override), ";"); override != "" {
		if q.Limit <= 0 {
			return override
		}
		return fmt.Sprintf("SELECT * FROM (%s) AS bounded LIMIT %d", override, q.Limit)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(SourceColumns(), ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Table)
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(SourceOrder, ", "))
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String()
}
