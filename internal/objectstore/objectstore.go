// Package objectstore implements the uniform contract over an S3-compatible
// object store described in §4.1: presigned PUT/GET minting, multipart
// initiate/upload-part/complete/abort, HEAD, DELETE, ranged GET, and
// list-incomplete-multipart-uploads. It wraps retries and maps provider
// errors onto a small local taxonomy so callers never inspect AWS SDK error
// types directly.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Part identifies one completed multipart chunk by its provider-issued ETag.
type Part struct {
	PartNumber int
	ETag       string
}

// HeadResult is the metadata returned by Head.
type HeadResult struct {
	Size         int64
	ETag         string
	LastModified time.Time
}

// IncompleteUpload describes one multipart upload still awaiting
// completion, as surfaced by ListIncompleteMultipart.
type IncompleteUpload struct {
	Key         string
	UploadID    string
	InitiatedAt time.Time
}

// Store is the object-store adapter contract. Every method accepts a
// context so request cancellation propagates into the underlying HTTP call;
// see §5 "every call into the object-store adapter ... is an I/O point."
type Store interface {
	MintSinglePut(ctx context.Context, key, contentType string, ttl time.Duration, checksumSHA256 *string) (url string, err error)
	InitiateMultipart(ctx context.Context, key, contentType string) (uploadID string, err error)
	MintPartPut(ctx context.Context, key, uploadID string, partNumber int, ttl time.Duration) (url string, err error)
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipart(ctx context.Context, key, uploadID string) error
	Head(ctx context.Context, key string) (HeadResult, error)
	Delete(ctx context.Context, key string) error
	RangeGet(ctx context.Context, key string, startInclusive, endInclusive int64) (io.ReadCloser, error)
	ListIncompleteMultipart(ctx context.Context, prefix string) ([]IncompleteUpload, error)
}

// Key layout helpers, per §6.1 (stable, observed by worker and CDN).

// SourceKey returns the canonical key for a video's uploaded source object.
func SourceKey(videoID, ext string) string {
	if ext == "" {
		return "sources/" + videoID + "/original"
	}
	return "sources/" + videoID + "/original." + ext
}

// ManifestKey returns the canonical key for a video's playback manifest.
func ManifestKey(videoID string) string {
	return "processed/" + videoID + "/manifest.json"
}

// ProcessedPrefix returns the key prefix owning every processed artifact for
// a video. Soft delete does not purge this prefix.
func ProcessedPrefix(videoID string) string {
	return "processed/" + videoID + "/"
}
