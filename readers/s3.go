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
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/mobility/core"
)

// S3ReaderError provides structured error information for S3 reader operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "read")
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats holds statistics about the S3 reader's performance
type S3ReaderStats struct {
	ObjectsListed  int64
	ObjectsRead    int64
	RecordsRead    int64
	ReadDuration   time.Duration
	LastReadTime   time.Time
	CurrentObject  string
	ProcessedFiles []string
}

// S3API is the subset of the S3 client used by the reader.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ReaderOptions configures the S3 reader behavior
type S3ReaderOptions struct {
	Bucket         string          // S3 bucket name
	Prefix         string          // Key prefix filter
	Suffix         string          // Key suffix filter (e.g., ".csv", ".jsonl.gz")
	MaxKeys        int32           // Page size for listing
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	Recursive      bool            // Include keys below nested prefixes
	SortOrder      SortOrder       // Order to process objects
	CSVOptions     []ReaderOptionCSV
	Client         S3API // Overrides the client built from the options above
}

// SortOrder defines how objects should be ordered for processing
type SortOrder string

const (
	SortByName         SortOrder = "name"          // Sort by object key
	SortByLastModified SortOrder = "last_modified" // Sort by modification time
	SortBySize         SortOrder = "size"          // Sort by object size
	SortNone           SortOrder = "none"          // No sorting (S3 order)
)

// ReaderOptionS3 represents a configuration function for S3Reader
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Bucket = bucket }
}

func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Prefix = prefix }
}

func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Suffix = suffix }
}

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Region = region }
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Profile = profile }
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Credentials = creds }
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.EndpointURL = endpoint }
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.ForcePathStyle = pathStyle }
}

func WithS3MaxKeys(maxKeys int32) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.MaxKeys = maxKeys }
}

func WithS3Recursive(recursive bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Recursive = recursive }
}

func WithS3SortOrder(order SortOrder) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.SortOrder = order }
}

// WithS3CSVOptions passes options to the CSV reader of every CSV object.
func WithS3CSVOptions(options ...ReaderOptionCSV) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.CSVOptions = append(opts.CSVOptions, options...) }
}

// WithS3Client injects a preconfigured client.
func WithS3Client(client S3API) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) { opts.Client = client }
}

// S3Object represents an S3 object selected for reading
type S3Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// S3Reader implements core.DataSource over the CSV and JSON lines objects
// below a bucket prefix. Objects are read one after another; a failure to
// open an object fails the read.
type S3Reader struct {
	client        S3API
	objects       []S3Object
	currentIndex  int
	currentReader core.DataSource
	stats         S3ReaderStats
	opts          S3ReaderOptions
	mu            sync.RWMutex
}

// NewS3Reader creates a new S3 reader and lists the matching objects.
func NewS3Reader(ctx context.Context, options ...ReaderOptionS3) (*S3Reader, error) {
	opts := S3ReaderOptions{
		MaxKeys:   1000,
		SortOrder: SortByName,
		Recursive: true,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	client := opts.Client
	if client == nil {
		cfg, err := createAWSConfig(ctx, opts)
		if err != nil {
			return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.EndpointURL != "" {
				o.BaseEndpoint = aws.String(opts.EndpointURL)
			}
			o.UsePathStyle = opts.ForcePathStyle
		})
	}

	reader := &S3Reader{
		client: client,
		opts:   opts,
		stats:  S3ReaderStats{ProcessedFiles: make([]string, 0)},
	}

	if err := reader.listObjects(ctx); err != nil {
		return nil, &S3ReaderError{Op: "list_objects", Err: err}
	}

	return reader, nil
}

// Read implements the core.DataSource interface
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
		s.stats.LastReadTime = time.Now()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, &S3ReaderError{Op: "read", Err: ctx.Err()}
		default:
		}

		if s.currentReader == nil {
			if s.currentIndex >= len(s.objects) {
				return nil, io.EOF
			}
			if err := s.openNextObject(ctx); err != nil {
				return nil, &S3ReaderError{Op: "get_object", Err: err}
			}
		}

		record, err := s.currentReader.Read(ctx)
		if err == io.EOF {
			if err := s.closeCurrentReader(); err != nil {
				return nil, &S3ReaderError{Op: "close_object", Err: err}
			}
			continue
		}
		if err != nil {
			return nil, &S3ReaderError{Op: "read_record", Err: fmt.Errorf("%s: %w", s.stats.CurrentObject, err)}
		}

		s.stats.RecordsRead++
		return record, nil
	}
}

// Close implements the core.DataSource interface
func (s *S3Reader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closeCurrentReader()
}

// Stats returns S3 reader performance statistics
func (s *S3Reader) Stats() S3ReaderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := s.stats
	stats.ProcessedFiles = append([]string(nil), s.stats.ProcessedFiles...)
	return stats
}

// Objects returns the objects selected for reading, in processing order.
func (s *S3Reader) Objects() []S3Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]S3Object(nil), s.objects...)
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, opts S3ReaderOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}

// listObjects retrieves and filters objects from S3
func (s *S3Reader) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	var objects []S3Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !s.shouldIncludeObject(key) {
				continue
			}
			objects = append(objects, S3Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), "\""),
			})
		}
	}

	sortObjects(objects, s.opts.SortOrder)
	s.objects = objects
	s.stats.ObjectsListed = int64(len(objects))
	return nil
}

// shouldIncludeObject determines if an object should be processed
func (s *S3Reader) shouldIncludeObject(key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
		return false
	}
	if !s.opts.Recursive && strings.Contains(strings.TrimPrefix(key, s.opts.Prefix), "/") {
		return false
	}
	return true
}

// sortObjects orders objects in place. Ties keep the key order.
func sortObjects(objects []S3Object, order SortOrder) {
	switch order {
	case SortByName:
		sort.SliceStable(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	case SortByLastModified:
		sort.SliceStable(objects, func(i, j int) bool { return objects[i].LastModified.Before(objects[j].LastModified) })
	case SortBySize:
		sort.SliceStable(objects, func(i, j int) bool { return objects[i].Size < objects[j].Size })
	}
}

// openNextObject opens the next S3 object for reading
func (s *S3Reader) openNextObject(ctx context.Context) error {
	obj := s.objects[s.currentIndex]
	s.stats.CurrentObject = obj.Key

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", obj.Key, err)
	}

	reader, err := NewStreamReader(obj.Key, result.Body, s.opts.CSVOptions...)
	if err != nil {
		return fmt.Errorf("failed to create reader for %s: %w", obj.Key, err)
	}

	s.currentReader = reader
	s.stats.ObjectsRead++
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, obj.Key)
	return nil
}

// closeCurrentReader closes the current object reader and advances to the next object
func (s *S3Reader) closeCurrentReader() error {
	if s.currentReader != nil {
		err := s.currentReader.Close()
		s.currentReader = nil
		s.currentIndex++
		return err
	}
	return nil
}
