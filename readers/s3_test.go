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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	order   []string
	listErr error
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	base := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, key := range f.order {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(f.objects[key]))),
			LastModified: aws.Time(base.Add(-time.Duration(i) * time.Hour)),
			ETag:         aws.String(`"etag"`),
		})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Reader_ReadsObjectsInKeyOrder(t *testing.T) {
	client := &fakeS3{
		objects: map[string][]byte{
			"staging/b.jsonl":      []byte(`{"country_region":"Second"}` + "\n"),
			"staging/a.csv":        []byte("country_region\nFirst\n"),
			"staging/":             nil,
			"staging/nested/c.csv": []byte("country_region\nNested\n"),
		},
		order: []string{"staging/b.jsonl", "staging/a.csv", "staging/", "staging/nested/c.csv"},
	}

	r, err := NewS3Reader(context.Background(),
		WithS3Bucket("mobility"),
		WithS3Prefix("staging/"),
		WithS3Recursive(false),
		WithS3Client(client))
	require.NoError(t, err)
	defer r.Close()

	objects := r.Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, "staging/a.csv", objects[0].Key)
	assert.Equal(t, "etag", objects[0].ETag)

	rows := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, "First", rows[0]["country_region"])
	assert.Equal(t, "Second", rows[1]["country_region"])

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.ObjectsRead)
	assert.Equal(t, []string{"staging/a.csv", "staging/b.jsonl"}, stats.ProcessedFiles)
}

func TestS3Reader_SortByLastModifiedAndSuffix(t *testing.T) {
	client := &fakeS3{
		objects: map[string][]byte{
			"a.csv": []byte("country_region\nOlder\n"),
			"b.csv": []byte("country_region\nOldest\n"),
			"c.txt": []byte("ignored"),
		},
		order: []string{"a.csv", "b.csv", "c.txt"},
	}
	r, err := NewS3Reader(context.Background(),
		WithS3Bucket("mobility"),
		WithS3Suffix(".csv"),
		WithS3SortOrder(SortByLastModified),
		WithS3Client(client))
	require.NoError(t, err)

	rows := readAll(t, r)
	require.Len(t, rows, 2)
	assert.Equal(t, "Oldest", rows[0]["country_region"])
}

func TestS3Reader_Errors(t *testing.T) {
	_, err := NewS3Reader(context.Background())
	var s3Err *S3ReaderError
	require.ErrorAs(t, err, &s3Err)
	assert.Equal(t, "validate_options", s3Err.Op)

	_, err = NewS3Reader(context.Background(), WithS3Bucket("b"), WithS3Client(&fakeS3{listErr: errors.New("denied")}))
	require.ErrorAs(t, err, &s3Err)
	assert.Equal(t, "list_objects", s3Err.Op)

	client := &fakeS3{objects: map[string][]byte{}, order: []string{"gone.csv"}}
	r, err := NewS3Reader(context.Background(), WithS3Bucket("b"), WithS3Client(client))
	require.NoError(t, err)
	_, err = r.Read(context.Background())
	require.ErrorAs(t, err, &s3Err)
	assert.Equal(t, "get_object", s3Err.Op)
}
