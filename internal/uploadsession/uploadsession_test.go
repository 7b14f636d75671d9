package uploadsession_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	objmem "videoingest/internal/objectstore/memstore"
	"videoingest/internal/uploadsession"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore/memstore"
)

func newVideo(t *testing.T, meta *memstore.Store, id, key string, size int64) {
	t.Helper()
	newVideoWithChecksum(t, meta, id, key, size, "")
}

func newVideoWithChecksum(t *testing.T, meta *memstore.Store, id, key string, size int64, checksum string) {
	t.Helper()
	if err := meta.CreateVideo(context.Background(), videomodel.Video{
		ID: id, Title: "t", Status: videomodel.StatusPendingUpload, SourceURL: key, SourceSize: size, SourceChecksum: checksum,
	}); err != nil {
		t.Fatalf("create video: %v", err)
	}
}

func TestNewSessionSelectsSinglePutBelowThreshold(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	mgr := uploadsession.New(objects, meta, uploadsession.WithMultipartThreshold(10<<20))

	key := "sources/v1/original.mp4"
	newVideo(t, meta, "v1", key, 5<<20)

	result, err := mgr.NewSession(context.Background(), "v1", key, "video/mp4", 5<<20, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if result.Multipart {
		t.Fatalf("expected single-PUT session")
	}
	if result.UploadURL == "" {
		t.Fatalf("expected a non-empty upload URL")
	}
}

func TestNewSessionSelectsMultipartAboveThreshold(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	mgr := uploadsession.New(objects, meta,
		uploadsession.WithMultipartThreshold(10<<20),
		uploadsession.WithMultipartChunkBytes(5<<20),
	)

	key := "sources/v2/original.mp4"
	size := int64(22 << 20)
	newVideo(t, meta, "v2", key, size)

	result, err := mgr.NewSession(context.Background(), "v2", key, "video/mp4", size, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if !result.Multipart {
		t.Fatalf("expected multipart session")
	}
	if result.NumParts != 5 {
		t.Fatalf("got %d parts, want 5", result.NumParts)
	}
	if len(result.PartURLs) != result.NumParts {
		t.Fatalf("got %d part URLs, want %d", len(result.PartURLs), result.NumParts)
	}
}

func TestCompleteDetectsWholeFileChecksumMismatch(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	mgr := uploadsession.New(objects, meta, uploadsession.WithMultipartThreshold(1<<30))

	key := "sources/v3/original.mp4"
	size := int64(1024)
	data := make([]byte, size)
	wrongSum := sha256.Sum256([]byte("not the real data"))
	newVideoWithChecksum(t, meta, "v3", key, size, base64.StdEncoding.EncodeToString(wrongSum[:]))

	result, err := mgr.NewSession(context.Background(), "v3", key, "video/mp4", size, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	objects.PutObject(key, "video/mp4", data)
	if err := meta.SetVideoUploadSession(context.Background(), "v3", result.SessionID); err != nil {
		t.Fatalf("set upload session: %v", err)
	}

	_, err = mgr.Complete(context.Background(), "v3", key)
	if err == nil {
		t.Fatalf("expected a checksum mismatch error")
	}
	ve, ok := err.(*videomodel.Error)
	if !ok {
		t.Fatalf("expected a *videomodel.Error, got %T: %v", err, err)
	}
	if ve.Kind != videomodel.KindChecksumMismatch {
		t.Fatalf("got kind %q, want checksum_mismatch", ve.Kind)
	}
}

func TestCompleteSucceedsWithMatchingWholeFileChecksum(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	mgr := uploadsession.New(objects, meta, uploadsession.WithMultipartThreshold(1<<30))

	key := "sources/v4/original.mp4"
	size := int64(1024)
	data := make([]byte, size)
	sum := sha256.Sum256(data)
	newVideoWithChecksum(t, meta, "v4", key, size, base64.StdEncoding.EncodeToString(sum[:]))

	result, err := mgr.NewSession(context.Background(), "v4", key, "video/mp4", size, nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	objects.PutObject(key, "video/mp4", data)
	if err := meta.SetVideoUploadSession(context.Background(), "v4", result.SessionID); err != nil {
		t.Fatalf("set upload session: %v", err)
	}

	if _, err := mgr.Complete(context.Background(), "v4", key); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

