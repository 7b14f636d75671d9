package jobqueue_test

import (
	"context"
	"testing"

	"videoingest/internal/jobqueue"
	"videoingest/internal/videomodel"
)

func TestMemoryProducerEnqueueAppendsInOrder(t *testing.T) {
	p := jobqueue.NewMemory()
	defer p.Close()

	ctx := context.Background()
	jobs := []videomodel.JobPayload{
		{VideoID: "v1", SourceURL: "sources/v1/original.mp4"},
		{VideoID: "v2", SourceURL: "sources/v2/original.mp4"},
	}
	for _, job := range jobs {
		if err := p.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	got := p.Jobs()
	if len(got) != 2 {
		t.Fatalf("got %d jobs, want 2", len(got))
	}
	for i, job := range jobs {
		if got[i] != job {
			t.Fatalf("job %d: got %+v, want %+v", i, got[i], job)
		}
	}
}

func TestMemoryProducerCloseIsIdempotent(t *testing.T) {
	p := jobqueue.NewMemory()
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
