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
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/aaronlmathis/mobility/mobility"
)

// printSummary renders the per-region aggregates of a committed run.
func (r *run) printSummary(w io.Writer) error {
	rows := r.summary.Results()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No records written")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Code", "Records", "Min", "Mean", "Max"})
	for _, row := range rows {
		table.Append([]string{
			valOrDash(row[mobility.ColCode]),
			valOrDash(row[summaryRecords]),
			valOrDash(row[summaryMin]),
			valOrDash(row[summaryMean]),
			valOrDash(row[summaryMax]),
		})
	}
	table.Render()

	_, err := fmt.Fprintf(w, "run %s: %d written to %s\n", r.id, r.stats.Written, r.logURI)
	return err
}

func valOrDash(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	default:
		return fmt.Sprint(x)
	}
}
