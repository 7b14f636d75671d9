// Package jobqueue implements the durable job-queue producer contract from
// §4.5: queue name "video-processing", payload {video_id, source_url},
// exponential backoff retry, dead-letter retention. The orchestrator is
// only a producer; workers consume the same Redis stream out of process.
// Grounded on the same consumer-group idiom as internal/eventbus, backed by
// a second Redis stream key.
package jobqueue

import (
	"context"

	"videoingest/internal/videomodel"
)

// QueueName is the single queue this system produces to, per §4.5.
const QueueName = "video-processing"

// Producer enqueues transcode jobs. Enqueue must be idempotent by
// (video_id, attempt_epoch): callers achieve this by guarding the call with
// the metadata store's status CAS so a retried complete() never double
// enqueues (§4.5 "dedup by video_id + status=processing CAS").
type Producer interface {
	Enqueue(ctx context.Context, job videomodel.JobPayload) error
	Close() error
}
