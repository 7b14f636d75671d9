package videostore

import (
	"context"
	"log/slog"
	"time"

	"videoingest/internal/jobqueue"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/videomodel"
)

// Dispatcher drains job_outbox rows into a jobqueue.Producer on a fixed
// poll interval, the asynchronous half of the §4.3.4 outbox pattern: the
// status transition and the outbox insert commit together; this loop is
// what turns the durable intent into an actual queue entry, so a crash
// between the two cannot strand the job.
type Dispatcher struct {
	store    Store
	producer jobqueue.Producer
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// DispatcherOption mutates a Dispatcher's polling behaviour.
type DispatcherOption func(*Dispatcher)

func WithPollInterval(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.interval = d
		}
	}
}

func WithBatchSize(n int) DispatcherOption {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.batch = n
		}
	}
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

// NewDispatcher constructs a Dispatcher over store, publishing to producer.
func NewDispatcher(store Store, producer jobqueue.Producer, opts ...DispatcherOption) *Dispatcher {
	disp := &Dispatcher{
		store:    store,
		producer: producer,
		interval: time.Second,
		batch:    50,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(disp)
		}
	}
	return disp
}

// Run polls the outbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.drainOnce(ctx); err != nil {
				d.logger.Warn("videostore: outbox drain failed", "error", err)
			}
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) error {
	entries, err := d.store.DrainOutbox(ctx, d.batch)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	published := make([]int64, 0, len(entries))
	for _, entry := range entries {
		job := videomodel.JobPayload{VideoID: entry.VideoID, SourceURL: entry.SourceURL}
		if err := d.producer.Enqueue(ctx, job); err != nil {
			metrics.Default().QueueEnqueueFailed()
			d.logger.Warn("videostore: enqueue from outbox failed, will retry", "video_id", entry.VideoID, "error", err)
			continue
		}
		metrics.Default().QueueEnqueued()
		published = append(published, entry.ID)
	}
	return d.store.MarkOutboxPublished(ctx, published)
}
