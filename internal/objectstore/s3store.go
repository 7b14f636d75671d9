package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config describes how to reach the S3-compatible bucket backing the
// object store. Mirrors the functional-options shape used elsewhere in the
// orchestrator (see internal/videostore).
type Config struct {
	Endpoint        string
	Region          string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UsePathStyle    bool
	Logger          *slog.Logger
}

// Option configures a Config.
type Option func(*Config)

func WithEndpoint(endpoint string) Option { return func(c *Config) { c.Endpoint = endpoint } }
func WithRegion(region string) Option     { return func(c *Config) { c.Region = region } }
func WithCredentials(access, secret string) Option {
	return func(c *Config) { c.AccessKey = access; c.SecretKey = secret }
}
func WithBucket(bucket string) Option         { return func(c *Config) { c.Bucket = bucket } }
func WithPathStyle(pathStyle bool) Option     { return func(c *Config) { c.UsePathStyle = pathStyle } }
func WithLogger(logger *slog.Logger) Option   { return func(c *Config) { c.Logger = logger } }

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  *slog.Logger
}

// New constructs a Store backed by the AWS SDK v2 S3 client and its presign
// client. It uses static credentials when supplied and otherwise falls back
// to the SDK's default credential chain.
func New(ctx context.Context, opts ...Option) (Store, error) {
	cfg := Config{Region: "us-east-1"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  cfg.Logger,
	}, nil
}

func (s *s3Store) MintSinglePut(ctx context.Context, key, contentType string, ttl time.Duration, checksumSHA256 *string) (string, error) {
	var url string
	err := withRetry(ctx, "mint_single_put", key, func() error {
		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		}
		if checksumSHA256 != nil {
			input.ChecksumSHA256 = aws.String(*checksumSHA256)
			input.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
		}
		req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

func (s *s3Store) InitiateMultipart(ctx context.Context, key, contentType string) (string, error) {
	var uploadID string
	err := withRetry(ctx, "initiate_multipart", key, func() error {
		out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return err
		}
		uploadID = aws.ToString(out.UploadId)
		return nil
	})
	return uploadID, err
}

func (s *s3Store) MintPartPut(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (string, error) {
	var url string
	err := withRetry(ctx, "mint_part_put", key, func() error {
		req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(int32(partNumber)),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

func (s *s3Store) CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error {
	sorted := make([]Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })
	for i, p := range sorted {
		if p.PartNumber != i+1 {
			return NewValidationPartsError(fmt.Sprintf("parts must cover 1..%d contiguously, got gap at %d", len(sorted), i+1))
		}
	}

	completed := make([]types.CompletedPart, len(sorted))
	for i, p := range sorted {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		}
	}

	return withRetry(ctx, "complete_multipart", key, func() error {
		_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
			MultipartUpload: &types.CompletedMultipartUpload{
				Parts: completed,
			},
		})
		return err
	})
}

func (s *s3Store) AbortMultipart(ctx context.Context, key, uploadID string) error {
	err := withRetry(ctx, "abort_multipart", key, func() error {
		_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return err
	})
	// Idempotent: NoSuchUpload classifies as NotFound, which callers treat
	// as success per §4.1 "success on already-aborted."
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (s *s3Store) Head(ctx context.Context, key string) (HeadResult, error) {
	var result HeadResult
	err := withRetry(ctx, "head", key, func() error {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		result = HeadResult{
			Size:         aws.ToInt64(out.ContentLength),
			ETag:         aws.ToString(out.ETag),
			LastModified: aws.ToTime(out.LastModified),
		}
		return nil
	})
	return result, err
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	err := withRetry(ctx, "delete", key, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (s *s3Store) RangeGet(ctx context.Context, key string, startInclusive, endInclusive int64) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := withRetry(ctx, "range_get", key, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", startInclusive, endInclusive)),
		})
		if err != nil {
			return err
		}
		data, readErr := io.ReadAll(out.Body)
		out.Body.Close()
		if readErr != nil {
			return readErr
		}
		body = io.NopCloser(bytes.NewReader(data))
		return nil
	})
	return body, err
}

func (s *s3Store) ListIncompleteMultipart(ctx context.Context, prefix string) ([]IncompleteUpload, error) {
	var results []IncompleteUpload
	var keyMarker, uploadIDMarker *string
	for {
		var out *s3.ListMultipartUploadsOutput
		err := withRetry(ctx, "list_incomplete_multipart", prefix, func() error {
			var innerErr error
			out, innerErr = s.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
				Bucket:         aws.String(s.bucket),
				Prefix:         aws.String(prefix),
				KeyMarker:      keyMarker,
				UploadIdMarker: uploadIDMarker,
			})
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		for _, u := range out.Uploads {
			results = append(results, IncompleteUpload{
				Key:         aws.ToString(u.Key),
				UploadID:    aws.ToString(u.UploadId),
				InitiatedAt: aws.ToTime(u.Initiated),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		keyMarker = out.NextKeyMarker
		uploadIDMarker = out.NextUploadIdMarker
	}
	return results, nil
}

// NewValidationPartsError builds a permanent-failure Error for malformed
// part lists (gaps, out-of-order parts) detected before the request ever
// reaches the provider.
func NewValidationPartsError(msg string) *Error {
	return &Error{Kind: KindPermanentFailure, Op: "complete_multipart", Err: fmt.Errorf("%s", msg)}
}
