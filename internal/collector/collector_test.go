package collector_test

import (
	"context"
	"testing"
	"time"

	"videoingest/internal/collector"
	"videoingest/internal/objectstore"
	objmem "videoingest/internal/objectstore/memstore"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore/memstore"
)

func TestCollectorAbortsAbandonedUpload(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	ctx := context.Background()

	videoID := "vid-1"
	key := objectstore.SourceKey(videoID, "mp4")
	now := time.Now().UTC()
	if err := meta.CreateVideo(ctx, videomodel.Video{
		ID: videoID, Title: "t", Status: videomodel.StatusPendingUpload,
		SourceURL: key, SourceSize: 100, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create video: %v", err)
	}

	uploadID, err := objects.InitiateMultipart(ctx, key, "video/mp4")
	if err != nil {
		t.Fatalf("initiate multipart: %v", err)
	}

	sessionID := "sess-1"
	if err := meta.CreateSession(ctx, videomodel.UploadSession{
		ID: sessionID, VideoID: videoID, MultipartUploadID: uploadID, TotalParts: 2,
		Status: videomodel.SessionActive, ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := meta.SetVideoUploadSession(ctx, videoID, sessionID); err != nil {
		t.Fatalf("set upload session: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	c := collector.New(objects, meta, collector.WithAbandonedAfter(time.Millisecond))

	// Run's first sweep happens synchronously before it blocks on the
	// ticker; cancel shortly after to stop the loop once that sweep lands.
	ctx2, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = c.Run(ctx2)

	incomplete, err := objects.ListIncompleteMultipart(context.Background(), "sources/")
	if err != nil {
		t.Fatalf("list incomplete: %v", err)
	}
	if len(incomplete) != 0 {
		t.Fatalf("expected multipart upload to be aborted, got %d remaining", len(incomplete))
	}

	sess, err := meta.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != videomodel.SessionExpired {
		t.Fatalf("got session status %q, want expired", sess.Status)
	}

	video, err := meta.GetVideo(context.Background(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if video.Status != videomodel.StatusFailed {
		t.Fatalf("got video status %q, want failed", video.Status)
	}
}

func TestCollectorSkipsRecentUploads(t *testing.T) {
	objects := objmem.New("")
	meta := memstore.New()
	ctx := context.Background()

	key := objectstore.SourceKey("vid-2", "mp4")
	if _, err := objects.InitiateMultipart(ctx, key, "video/mp4"); err != nil {
		t.Fatalf("initiate multipart: %v", err)
	}

	c := collector.New(objects, meta, collector.WithAbandonedAfter(time.Hour))
	ctx2, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_ = c.Run(ctx2)

	incomplete, err := objects.ListIncompleteMultipart(ctx, "sources/")
	if err != nil {
		t.Fatalf("list incomplete: %v", err)
	}
	if len(incomplete) != 1 {
		t.Fatalf("expected the recent upload to remain, got %d", len(incomplete))
	}
}
