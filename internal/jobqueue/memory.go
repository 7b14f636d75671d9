package jobqueue

import (
	"context"
	"sync"

	"videoingest/internal/videomodel"
)

// MemoryProducer is an in-process Producer for unit tests, grounded on the
// same in-memory fake shape as eventbus.MemoryBus. It records every
// enqueued job so tests can assert on dispatch without a real Redis.
type MemoryProducer struct {
	mu     sync.Mutex
	jobs   []videomodel.JobPayload
	closed bool
}

// NewMemory constructs an empty MemoryProducer.
func NewMemory() *MemoryProducer {
	return &MemoryProducer{}
}

func (p *MemoryProducer) Enqueue(_ context.Context, job videomodel.JobPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *MemoryProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Jobs returns a snapshot of every job enqueued so far, in enqueue order.
func (p *MemoryProducer) Jobs() []videomodel.JobPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]videomodel.JobPayload, len(p.jobs))
	copy(out, p.jobs)
	return out
}

var _ Producer = (*MemoryProducer)(nil)
