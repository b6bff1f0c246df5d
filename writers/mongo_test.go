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

package writers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/aaronlmathis/mobility/mobility"
)

func TestToDocument(t *testing.T) {
	rows := cleanedRows()
	doc := toDocument(rows[1], mobility.TableSchema.Columns())

	require.Len(t, doc, len(mobility.TableSchema))
	assert.Equal(t, bson.E{Key: "code", Value: nil}, doc[0])
	assert.Equal(t, "country", doc[1].Key)
	assert.Equal(t, time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), doc[2].Value)
	assert.Equal(t, int64(4), doc[3].Value)
	assert.Nil(t, doc[5].Value)
}

func TestNewMongoWriter_Validation(t *testing.T) {
	_, err := NewMongoWriter(context.Background(), WithMongoColumns(mobility.TableSchema))
	var mErr *MongoWriterError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "validate", mErr.Op)

	_, err = NewMongoWriter(context.Background(), WithMongoCollection("db", "mobility"))
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, err.Error(), "columns are required")
}

func TestMongoWriter_ReplaceCollection(t *testing.T) {
	uri := os.Getenv("MOBILITY_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MOBILITY_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, mongoClientOptions(uri, 10*time.Second))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	database := "mobility_test"
	collection := fmt.Sprintf("cleaned_%d", time.Now().UnixNano())
	defer client.Database(database).Collection(collection).Drop(ctx)

	run := func(n int, commit bool) {
		w, err := NewMongoWriter(ctx,
			WithMongoClient(client),
			WithMongoCollection(database, collection),
			WithMongoColumns(mobility.TableSchema),
			WithMongoBatchSize(1),
		)
		require.NoError(t, err)
		writeAll(t, w, cleanedRows()[:n])
		if commit {
			require.NoError(t, w.Commit(ctx))
		}
		require.NoError(t, w.Close())
	}
	count := func() int64 {
		n, err := client.Database(database).Collection(collection).CountDocuments(ctx, bson.D{})
		require.NoError(t, err)
		return n
	}

	run(2, true)
	assert.Equal(t, int64(2), count())

	run(1, false)
	assert.Equal(t, int64(2), count())

	run(1, true)
	assert.Equal(t, int64(1), count())
}
