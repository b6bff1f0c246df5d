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

type regionAction int

const (
	regionRename regionAction = iota
	regionExclude
)

type regionRule struct {
	match     string
	action    regionAction
	canonical string
}

// regionRules is evaluated in order against the original code; rules never
// see the output of an earlier rule.
var regionRules = []regionRule{
	{match: "GR", action: regionRename, canonical: "EL"}, // Greece
	{match: "GB", action: regionRename, canonical: "UK"}, // United Kingdom
	{match: "RE", action: regionExclude},                 // Reunion
	{match: "HK", action: regionRename, canonical: "CN"}, // Hong Kong
}

// NormalizeRegion maps a raw region code to its canonical form.
// excluded is true when records for the region must be dropped. Codes without
// a rule, including nil, are returned unchanged.
func NormalizeRegion(code *string) (normalized *string, excluded bool) {
	normalized = code
	if code == nil {
		return normalized, false
	}
	original := *code
	for _, rule := range regionRules {
		if original != rule.match {
			continue
		}
		switch rule.action {
		case regionRename:
			canonical := rule.canonical
			normalized = &canonical
		case regionExclude:
			excluded = true
		}
	}
	return normalized, excluded
}

// ExcludedRegions returns the region codes whose records are always dropped.
func ExcludedRegions() []string {
	var codes []string
	for _, rule := range regionRules {
		if rule.action == regionExclude {
			codes = append(codes, rule.match)
		}
	}
	return codes
}
