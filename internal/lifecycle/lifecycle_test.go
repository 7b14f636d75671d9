package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"videoingest/internal/eventbus"
	"videoingest/internal/lifecycle"
	objmem "videoingest/internal/objectstore/memstore"
	"videoingest/internal/uploadsession"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
	"videoingest/internal/videostore/memstore"
)

func newController(t *testing.T) (*lifecycle.Controller, *objmem.Store, videostore.Store, eventbus.Bus) {
	t.Helper()
	objects := objmem.New("")
	meta := memstore.New()
	bus := eventbus.NewMemory()
	sessions := uploadsession.New(objects, meta, uploadsession.WithMultipartThreshold(1<<20))
	ctrl := lifecycle.New(meta, objects, sessions, bus)
	return ctrl, objects, meta, bus
}

func TestCreateCompleteSingleUploadReachesProcessing(t *testing.T) {
	ctrl, objects, _, _ := newController(t)
	ctx := context.Background()

	result, err := ctrl.CreateUpload(ctx, lifecycle.CreateUploadRequest{
		Title:        "clip",
		Filename:     "clip.mp4",
		ContentType:  "video/mp4",
		DeclaredSize: 1024,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	if result.Session.Multipart {
		t.Fatalf("expected single-PUT session for a small file")
	}

	video, err := ctrl.GetVideo(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 1024))

	completed, err := ctrl.Complete(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != videomodel.StatusProcessing {
		t.Fatalf("got status %q, want processing", completed.Status)
	}
}

func TestWorkerReadyEventSatisfiesReadyInvariant(t *testing.T) {
	ctrl, objects, meta, bus := newController(t)
	ctx := context.Background()

	result, err := ctrl.CreateUpload(ctx, lifecycle.CreateUploadRequest{
		Filename:     "clip.mp4",
		ContentType:  "video/mp4",
		DeclaredSize: 2048,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	video, err := ctrl.GetVideo(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 2048))
	if _, err := ctrl.Complete(ctx, result.VideoID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	reconciler := lifecycle.NewReconciler(ctrl, bus, nil)
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- reconciler.Run(rctx) }()

	if err := bus.Publish(ctx, videomodel.StatusEvent{
		VideoID: result.VideoID,
		Status:  videomodel.StatusReady,
		Result: &videomodel.StatusEventResult{
			ManifestURL: "processed/" + result.VideoID + "/manifest.json",
			DurationS:   12.5,
			Width:       1920,
			Height:      1080,
		},
		TS: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("publish ready event: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var final videomodel.Video
	for time.Now().Before(deadline) {
		final, err = meta.GetVideo(ctx, result.VideoID)
		if err != nil {
			t.Fatalf("get video: %v", err)
		}
		if final.Status == videomodel.StatusReady {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if final.Status != videomodel.StatusReady {
		t.Fatalf("got status %q, want ready", final.Status)
	}
	if !final.Ready() {
		t.Fatalf("video %+v does not satisfy the ready invariant", final)
	}
}

func TestAbortCancelsAndDeletesSourceObject(t *testing.T) {
	ctrl, objects, _, _ := newController(t)
	ctx := context.Background()

	result, err := ctrl.CreateUpload(ctx, lifecycle.CreateUploadRequest{
		Filename:     "clip.mp4",
		ContentType:  "video/mp4",
		DeclaredSize: 1024,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	video, err := ctrl.GetVideo(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 1024))

	if err := ctrl.Abort(ctx, result.VideoID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	final, err := ctrl.GetVideo(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if final.Status != videomodel.StatusCancelled {
		t.Fatalf("got status %q, want cancelled", final.Status)
	}
	if _, err := objects.Head(ctx, video.SourceURL); err == nil {
		t.Fatalf("expected source object to be deleted after abort")
	}
}

func TestDeleteVideoExcludesFromListing(t *testing.T) {
	ctrl, objects, _, _ := newController(t)
	ctx := context.Background()

	result, err := ctrl.CreateUpload(ctx, lifecycle.CreateUploadRequest{
		Filename:     "clip.mp4",
		ContentType:  "video/mp4",
		DeclaredSize: 1024,
	})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	video, err := ctrl.GetVideo(ctx, result.VideoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 1024))

	if err := ctrl.DeleteVideo(ctx, result.VideoID); err != nil {
		t.Fatalf("delete video: %v", err)
	}

	list, err := ctrl.ListVideos(ctx)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	for _, v := range list {
		if v.ID == result.VideoID {
			t.Fatalf("deleted video %s still present in listing", result.VideoID)
		}
	}
}

