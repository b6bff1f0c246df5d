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

// MinPresentDeltas is the minimum number of reported changes a record needs
// to be published.
const MinPresentDeltas = 2

// Verdict explains what Transform did with a record.
type Verdict int

const (
	// Admitted means a CleanedRecord was produced.
	Admitted Verdict = iota
	// DroppedInsufficient means fewer than MinPresentDeltas changes were reported.
	DroppedInsufficient
	// DroppedExcluded means the region is on the exclusion list.
	DroppedExcluded
)

func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case DroppedInsufficient:
		return "insufficient_data"
	case DroppedExcluded:
		return "excluded_region"
	default:
		return "unknown"
	}
}

// Transform maps one raw record to at most one cleaned record. It has no side
// effects and never fails; the returned CleanedRecord is only meaningful when
// the verdict is Admitted.
func Transform(raw RawRecord) (CleanedRecord, Verdict) {
	present := raw.Changes.Present()
	if len(present) < MinPresentDeltas {
		return CleanedRecord{}, DroppedInsufficient
	}

	code, excluded := NormalizeRegion(raw.CountryRegionCode)
	if excluded {
		return CleanedRecord{}, DroppedExcluded
	}

	return CleanedRecord{
		Code:          code,
		Country:       raw.CountryRegion,
		Date:          raw.Date,
		AverageChange: AverageChange(present),
		Changes:       raw.Changes,
	}, Admitted
}

// AverageChange returns the arithmetic mean of values rounded to the nearest
// integer, ties to even. It returns 0 for an empty slice.
func AverageChange(values []int64) int64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return roundHalfEven(sum, int64(len(values)))
}

// roundHalfEven returns sum/n rounded half to even using integer arithmetic, n > 0.
func roundHalfEven(sum, n int64) int64 {
	q, r := sum/n, sum%n
	if r == 0 {
		return q
	}
	sign := int64(1)
	if r < 0 {
		sign, r = -1, -r
	}
	switch twice := 2 * r; {
	case twice > n:
		q += sign
	case twice == n && q%2 != 0:
		q += sign
	}
	return q
}
