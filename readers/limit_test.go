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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitReader(t *testing.T) {
	ctx := context.Background()
	input := "{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n"

	limited := NewLimitReader(NewJSONReader(io.NopCloser(strings.NewReader(input))), 2)
	var got []interface{}
	for {
		rec, err := limited.Read(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, rec["n"])
	}
	assert.Equal(t, []interface{}{float64(1), float64(2)}, got)
	assert.NoError(t, limited.Close())

	src := NewJSONReader(io.NopCloser(strings.NewReader(input)))
	assert.Same(t, src, NewLimitReader(src, 0).(*JSONReader))
}
