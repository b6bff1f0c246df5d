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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/option"
)

// Package writers provides implementations of core.DataSink for publishing
// cleaned mobility records: line-oriented log encoders over staged objects
// and truncate-and-replace table writers for SQL, document and warehouse
// backends.

// LocationError wraps failures to stage or publish an output object.
type LocationError struct {
	Op       string // Operation that failed (e.g., "parse", "stage", "commit")
	Location string // Location URI
	Err      error  // Underlying error
}

func (e *LocationError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("location %s [%s]: %v", e.Op, e.Location, e.Err)
	}
	return fmt.Sprintf("location %s: %v", e.Op, e.Err)
}

func (e *LocationError) Unwrap() error {
	return e.Err
}

// ErrObjectFinished is returned when a staged object is written to or
// committed after it was already committed or aborted.
var ErrObjectFinished = errors.New("staged object already finished")

// StagedObject is an output object whose content only becomes visible at its
// destination when Commit succeeds. Abort discards it; calling Abort after
// Commit is a no-op.
type StagedObject interface {
	io.Writer
	Commit(ctx context.Context) error
	Abort() error
}

// Location is a destination that can stage new objects.
type Location interface {
	Stage(ctx context.Context) (StagedObject, error)
	String() string
}

// Placeholders recognised by ExpandLocation.
const (
	PlaceholderRunID     = "{run_id}"
	PlaceholderTimestamp = "{timestamp}"

	// TimestampLayout formats the {timestamp} placeholder.
	TimestampLayout = "20060102T150405Z"
)

// ExpandLocation replaces the {run_id} and {timestamp} placeholders in uri.
// The timestamp is rendered in UTC.
func ExpandLocation(uri, runID string, at time.Time) string {
	return strings.NewReplacer(
		PlaceholderRunID, runID,
		PlaceholderTimestamp, at.UTC().Format(TimestampLayout),
	).Replace(uri)
}

// LocationOptions carries the client configuration used by ParseLocation.
type LocationOptions struct {
	ContentType string

	S3Client    S3PutAPI
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
	S3AccessKey string
	S3SecretKey string

	GCSClient  *storage.Client
	GCSOptions []option.ClientOption

	AzureClient           AzureUploader
	AzureAccount          string
	AzureKey              string
	AzureURL              string
	AzureConnectionString string
}

// LocationOption is a functional option for LocationOptions.
type LocationOption func(*LocationOptions)

// WithContentType sets the MIME type recorded on cloud objects.
func WithContentType(contentType string) LocationOption {
	return func(opts *LocationOptions) { opts.ContentType = contentType }
}

// WithS3Client uses client for s3:// locations.
func WithS3Client(client S3PutAPI) LocationOption {
	return func(opts *LocationOptions) { opts.S3Client = client }
}

// WithS3Config sets the region, endpoint and addressing style for s3:// locations.
func WithS3Config(region, endpoint string, pathStyle bool) LocationOption {
	return func(opts *LocationOptions) {
		opts.S3Region = region
		opts.S3Endpoint = endpoint
		opts.S3PathStyle = pathStyle
	}
}

// WithS3Credentials sets static credentials for s3:// locations.
func WithS3Credentials(accessKey, secretKey string) LocationOption {
	return func(opts *LocationOptions) {
		opts.S3AccessKey = accessKey
		opts.S3SecretKey = secretKey
	}
}

// WithGCSClient uses client for gs:// locations. The client is not closed.
func WithGCSClient(client *storage.Client) LocationOption {
	return func(opts *LocationOptions) { opts.GCSClient = client }
}

// WithGCSClientOptions passes options to storage.NewClient.
func WithGCSClientOptions(options ...option.ClientOption) LocationOption {
	return func(opts *LocationOptions) { opts.GCSOptions = append(opts.GCSOptions, options...) }
}

// WithAzureClient uses client for azblob:// locations.
func WithAzureClient(client AzureUploader) LocationOption {
	return func(opts *LocationOptions) { opts.AzureClient = client }
}

// WithAzureSharedKey authenticates azblob:// locations with an account key.
// An empty serviceURL selects https://<account>.blob.core.windows.net/.
func WithAzureSharedKey(account, key, serviceURL string) LocationOption {
	return func(opts *LocationOptions) {
		opts.AzureAccount = account
		opts.AzureKey = key
		opts.AzureURL = serviceURL
	}
}

// WithAzureConnectionString authenticates azblob:// locations with a connection string.
func WithAzureConnectionString(conn string) LocationOption {
	return func(opts *LocationOptions) { opts.AzureConnectionString = conn }
}

// ParseLocation resolves uri into a Location. Supported forms are a local
// path, s3://bucket/key, gs://bucket/object and azblob://container/blob.
func ParseLocation(uri string, options ...LocationOption) (Location, error) {
	opts := &LocationOptions{}
	for _, option := range options {
		option(opts)
	}
	if uri == "" {
		return nil, &LocationError{Op: "parse", Err: errors.New("empty location")}
	}

	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return FileLocation{Path: uri}, nil
	}
	if scheme == "file" {
		u, err := url.Parse(uri)
		if err != nil || u.Path == "" {
			return nil, &LocationError{Op: "parse", Location: uri, Err: errors.New("invalid file uri")}
		}
		return FileLocation{Path: u.Path}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return nil, &LocationError{Op: "parse", Location: uri, Err: errors.New("expected <scheme>://<bucket>/<object>")}
	}

	switch scheme {
	case "s3":
		return &S3Location{
			Bucket:      bucket,
			Key:         key,
			ContentType: opts.ContentType,
			Client:      opts.S3Client,
			Region:      opts.S3Region,
			Endpoint:    opts.S3Endpoint,
			PathStyle:   opts.S3PathStyle,
			AccessKey:   opts.S3AccessKey,
			SecretKey:   opts.S3SecretKey,
		}, nil
	case "gs":
		return &GCSLocation{
			Bucket:        bucket,
			Object:        key,
			ContentType:   opts.ContentType,
			Client:        opts.GCSClient,
			ClientOptions: opts.GCSOptions,
		}, nil
	case "azblob":
		return &AzureLocation{
			Container:        bucket,
			Blob:             key,
			Client:           opts.AzureClient,
			Account:          opts.AzureAccount,
			Key:              opts.AzureKey,
			ServiceURL:       opts.AzureURL,
			ConnectionString: opts.AzureConnectionString,
		}, nil
	default:
		return nil, &LocationError{Op: "parse", Location: uri, Err: fmt.Errorf("unsupported scheme %q", scheme)}
	}
}

// FileLocation stages output in a temporary file next to Path and renames it
// into place on commit.
type FileLocation struct {
	Path string
}

func (f FileLocation) String() string { return f.Path }

// Stage creates the temporary file, creating parent directories as needed.
func (f FileLocation) Stage(ctx context.Context) (StagedObject, error) {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &LocationError{Op: "create_directory", Location: f.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return nil, &LocationError{Op: "stage", Location: f.Path, Err: err}
	}
	return &fileObject{file: tmp, path: f.Path}, nil
}

type fileObject struct {
	file     *os.File
	path     string
	finished bool
}

func (o *fileObject) Write(p []byte) (int, error) {
	if o.finished {
		return 0, ErrObjectFinished
	}
	return o.file.Write(p)
}

func (o *fileObject) Commit(ctx context.Context) error {
	if o.finished {
		return ErrObjectFinished
	}
	o.finished = true
	tmp := o.file.Name()
	if err := o.file.Sync(); err != nil {
		o.file.Close()
		os.Remove(tmp)
		return &LocationError{Op: "sync", Location: o.path, Err: err}
	}
	if err := o.file.Close(); err != nil {
		os.Remove(tmp)
		return &LocationError{Op: "close", Location: o.path, Err: err}
	}
	if err := os.Rename(tmp, o.path); err != nil {
		os.Remove(tmp)
		return &LocationError{Op: "commit", Location: o.path, Err: err}
	}
	return nil
}

func (o *fileObject) Abort() error {
	if o.finished {
		return nil
	}
	o.finished = true
	o.file.Close()
	if err := os.Remove(o.file.Name()); err != nil && !os.IsNotExist(err) {
		return &LocationError{Op: "abort", Location: o.path, Err: err}
	}
	return nil
}

// bufferedObject collects the whole object in memory and hands it to upload
// on commit. Cloud stores without a native staging area publish this way.
type bufferedObject struct {
	buf      bytes.Buffer
	upload   func(ctx context.Context, data []byte) error
	finished bool
}

func (o *bufferedObject) Write(p []byte) (int, error) {
	if o.finished {
		return 0, ErrObjectFinished
	}
	return o.buf.Write(p)
}

func (o *bufferedObject) Commit(ctx context.Context) error {
	if o.finished {
		return ErrObjectFinished
	}
	o.finished = true
	err := o.upload(ctx, o.buf.Bytes())
	o.buf.Reset()
	return err
}

func (o *bufferedObject) Abort() error {
	o.finished = true
	o.buf.Reset()
	return nil
}

// S3PutAPI abstracts the S3 PutObject method.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Location publishes an object to S3 with a single PutObject on commit.
type S3Location struct {
	Bucket      string
	Key         string
	ContentType string
	Client      S3PutAPI // Overrides the client built from the fields below
	Region      string
	Endpoint    string
	PathStyle   bool
	AccessKey   string
	SecretKey   string
}

func (s *S3Location) String() string { return "s3://" + s.Bucket + "/" + s.Key }

// Stage resolves the client and returns an in-memory staged object.
func (s *S3Location) Stage(ctx context.Context) (StagedObject, error) {
	client := s.Client
	if client == nil {
		var err error
		if client, err = s.newClient(ctx); err != nil {
			return nil, &LocationError{Op: "connect", Location: s.String(), Err: err}
		}
	}
	return &bufferedObject{upload: func(ctx context.Context, data []byte) error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Key),
			Body:   bytes.NewReader(data),
		}
		if s.ContentType != "" {
			input.ContentType = aws.String(s.ContentType)
		}
		if _, err := client.PutObject(ctx, input); err != nil {
			return &LocationError{Op: "put_object", Location: s.String(), Err: err}
		}
		return nil
	}}, nil
}

func (s *S3Location) newClient(ctx context.Context) (*s3.Client, error) {
	var cfgOpts []func(*config.LoadOptions) error
	if s.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(s.Region))
	}
	if s.AccessKey != "" && s.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config load error: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.Endpoint)
		}
		o.UsePathStyle = s.PathStyle
	}), nil
}

// GCSLocation streams an object to Cloud Storage. The upload is finalised
// when the writer is closed on commit and cancelled on abort, so no object
// appears unless Commit succeeds.
type GCSLocation struct {
	Bucket        string
	Object        string
	ContentType   string
	Client        *storage.Client // Existing client; not closed
	ClientOptions []option.ClientOption
}

func (g *GCSLocation) String() string { return "gs://" + g.Bucket + "/" + g.Object }

// Stage opens the object writer.
func (g *GCSLocation) Stage(ctx context.Context) (StagedObject, error) {
	client, owns := g.Client, false
	if client == nil {
		var err error
		client, err = storage.NewClient(ctx, g.ClientOptions...)
		if err != nil {
			return nil, &LocationError{Op: "connect", Location: g.String(), Err: err}
		}
		owns = true
	}
	wctx, cancel := context.WithCancel(ctx)
	w := client.Bucket(g.Bucket).Object(g.Object).NewWriter(wctx)
	if g.ContentType != "" {
		w.ContentType = g.ContentType
	}
	obj := &gcsObject{writer: w, cancel: cancel, location: g.String()}
	if owns {
		obj.client = client
	}
	return obj, nil
}

type gcsObject struct {
	writer   *storage.Writer
	cancel   context.CancelFunc
	client   *storage.Client
	location string
	finished bool
}

func (o *gcsObject) Write(p []byte) (int, error) {
	if o.finished {
		return 0, ErrObjectFinished
	}
	return o.writer.Write(p)
}

func (o *gcsObject) Commit(ctx context.Context) error {
	if o.finished {
		return ErrObjectFinished
	}
	o.finished = true
	defer o.release()
	if err := o.writer.Close(); err != nil {
		return &LocationError{Op: "commit", Location: o.location, Err: err}
	}
	return nil
}

func (o *gcsObject) Abort() error {
	if o.finished {
		return nil
	}
	o.finished = true
	o.cancel()
	o.writer.Close()
	o.release()
	return nil
}

func (o *gcsObject) release() {
	o.cancel()
	if o.client != nil {
		o.client.Close()
		o.client = nil
	}
}

// AzureUploader is the subset of *azblob.Client used to publish blobs.
type AzureUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureLocation publishes a block blob with a single upload on commit.
type AzureLocation struct {
	Container        string
	Blob             string
	Client           AzureUploader // Overrides the credentials below
	Account          string
	Key              string
	ServiceURL       string
	ConnectionString string
}

func (a *AzureLocation) String() string { return "azblob://" + a.Container + "/" + a.Blob }

// Stage resolves the client and returns an in-memory staged object.
func (a *AzureLocation) Stage(ctx context.Context) (StagedObject, error) {
	client := a.Client
	if client == nil {
		c, err := a.newClient()
		if err != nil {
			return nil, &LocationError{Op: "connect", Location: a.String(), Err: err}
		}
		client = c
	}
	return &bufferedObject{upload: func(ctx context.Context, data []byte) error {
		if _, err := client.UploadBuffer(ctx, a.Container, a.Blob, data, nil); err != nil {
			return &LocationError{Op: "upload", Location: a.String(), Err: err}
		}
		return nil
	}}, nil
}

func (a *AzureLocation) newClient() (*azblob.Client, error) {
	if a.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(a.ConnectionString, nil)
	}
	if a.Account == "" || a.Key == "" {
		return nil, errors.New("azure account and key or a connection string are required")
	}
	cred, err := azblob.NewSharedKeyCredential(a.Account, a.Key)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential error: %w", err)
	}
	serviceURL := a.ServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", a.Account)
	}
	return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
}
