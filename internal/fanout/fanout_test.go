package fanout_test

import (
	"context"
	"testing"
	"time"

	"videoingest/internal/eventbus"
	"videoingest/internal/fanout"
	"videoingest/internal/videomodel"
)

func TestServiceBroadcastsInOrderPerVideo(t *testing.T) {
	bus := eventbus.NewMemory()
	svc := fanout.New(bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	eventsA, unsubA := svc.Subscribe("video-a")
	defer unsubA()
	eventsB, unsubB := svc.Subscribe("video-b")
	defer unsubB()

	publish(t, bus, "video-a", videomodel.StatusProcessing)
	publish(t, bus, "video-a", videomodel.StatusReady)
	publish(t, bus, "video-b", videomodel.StatusFailed)

	want := []videomodel.VideoStatus{videomodel.StatusProcessing, videomodel.StatusReady}
	for i, status := range want {
		select {
		case got := <-eventsA:
			if got.Status != status {
				t.Fatalf("event %d: got status %q, want %q", i, got.Status, status)
			}
			if got.VideoID != "video-a" {
				t.Fatalf("event %d: got video id %q, want video-a", i, got.VideoID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d on video-a", i)
		}
	}

	select {
	case got := <-eventsB:
		if got.Status != videomodel.StatusFailed {
			t.Fatalf("got status %q, want failed", got.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for video-b event")
	}
}

func TestServiceUnsubscribeClosesChannel(t *testing.T) {
	bus := eventbus.NewMemory()
	svc := fanout.New(bus, nil)

	events, unsub := svc.Subscribe("video-c")
	unsub()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func publish(t *testing.T, bus eventbus.Bus, videoID string, status videomodel.VideoStatus) {
	t.Helper()
	event := videomodel.StatusEvent{VideoID: videoID, Status: status, TS: time.Now().UTC()}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
