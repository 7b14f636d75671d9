// Package eventbus implements the durable pub/sub channel described in §4.6:
// the worker publishes status events on topic "video:status", API replicas
// subscribe, delivery is at-least-once while a subscriber is connected and
// best-effort across disconnects. The production implementation is backed
// by Redis Streams with consumer groups (redis.go), driven through
// github.com/redis/go-redis/v9.
package eventbus

import (
	"context"

	"videoingest/internal/videomodel"
)

// Subscription is a live subscription to a topic. Events arrive on Events() in
// publish order (per-subscriber FIFO, §5 "Ordering guarantees").
type Subscription interface {
	Events() <-chan videomodel.StatusEvent
	Close() error
}

// Bus is the event bus contract. Publish is called by the worker (and by
// the lifecycle controller, which publishes the "processing" event when an
// upload completes); Subscribe is called by the fan-out service and by the
// lifecycle Reconciler.
type Bus interface {
	Publish(ctx context.Context, event videomodel.StatusEvent) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// TopicVideoStatus is the single topic this system publishes to, per §4.6.
const TopicVideoStatus = "video:status"
