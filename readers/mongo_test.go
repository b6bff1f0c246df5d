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
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertBSONValue(t *testing.T) {
	ts := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	dec, err := primitive.ParseDecimal128("-12")
	require.NoError(t, err)

	assert.Equal(t, int64(7), convertBSONValue(int32(7)))
	assert.Equal(t, int64(7), convertBSONValue(int64(7)))
	assert.Equal(t, ts, convertBSONValue(primitive.NewDateTimeFromTime(ts)))
	assert.Equal(t, int64(-12), convertBSONValue(dec))
	assert.Nil(t, convertBSONValue(primitive.Null{}))
	assert.Equal(t, "GR", convertBSONValue("GR"))
	assert.Equal(t, []interface{}{int64(1)}, convertBSONValue(bson.A{int32(1)}))
}

func TestMongoReaderOptions(t *testing.T) {
	opts := defaultMongoReaderOptions()
	WithMongoSort("date", "country_region")(opts)
	WithMongoLimit(100)(opts)
	assert.Equal(t, bson.D{{Key: "date", Value: 1}, {Key: "country_region", Value: 1}}, opts.Sort)

	r := &MongoReader{opts: opts}
	findOpts := r.findOptions()
	require.NotNil(t, findOpts.Limit)
	assert.Equal(t, int64(100), *findOpts.Limit)
	assert.Equal(t, bson.M{"_id": 0}, findOpts.Projection)
	assert.Equal(t, bson.M{}, r.filter())

	_, err := buildMongoClientOptions(&MongoReaderOptions{URI: "mongodb://localhost", ReadPreference: "sometimes"})
	assert.ErrorContains(t, err, "invalid read preference")
}

func TestDocumentRecord_FillsOmittedFields(t *testing.T) {
	nulls := map[string]int64{}
	doc := bson.M{"country_region_code": "GR", "parks": int32(-3), "workplaces": primitive.Null{}}

	record := documentRecord(doc, []string{"country_region_code", "parks", "workplaces", "residential"}, nulls)
	assert.Equal(t, "GR", record["country_region_code"])
	assert.Equal(t, int64(-3), record["parks"])
	assert.Contains(t, record, "residential")
	assert.Nil(t, record["residential"])
	assert.Nil(t, record["workplaces"])
	assert.Equal(t, map[string]int64{"workplaces": 1, "residential": 1}, nulls)

	opts := defaultMongoReaderOptions()
	WithMongoFields("parks", "residential")(opts)
	findOpts := (&MongoReader{opts: opts}).findOptions()
	assert.Equal(t, bson.M{"_id": 0, "parks": 1, "residential": 1}, findOpts.Projection)
}

func TestNewMongoReader_Validation(t *testing.T) {
	_, err := NewMongoReader(context.Background(), WithMongoCollection("c"))
	var mongoErr *MongoReaderError
	require.ErrorAs(t, err, &mongoErr)
	assert.Equal(t, "validate", mongoErr.Op)

	_, err = NewMongoReader(context.Background(), WithMongoDB("d"))
	require.ErrorAs(t, err, &mongoErr)
}
