// Package fanout is the Status Fan-out Service (§4.6): it subscribes to the
// event bus's video:status topic once per process and relays each event to
// every HTTP client currently watching that video over a WebSocket. Each
// subscriber gets its own bounded, drop-oldest queue so one slow reader
// cannot stall delivery to the others or back-pressure the relay loop, using
// a room registry (map[topic]map[*client]struct{} under a RWMutex, per-client
// buffered send channel, independent write loop) served over
// github.com/gorilla/websocket.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"videoingest/internal/eventbus"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/videomodel"
)

// queueDepth is the per-subscriber bounded queue size from §4.6: once full,
// the oldest queued event is dropped to make room for the newest.
const queueDepth = 64

// Service relays video:status events to per-video WebSocket subscribers.
type Service struct {
	bus    eventbus.Bus
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// New constructs a Service over bus. Call Run in a background goroutine
// before any Subscribe calls will receive events.
func New(bus eventbus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		bus:    bus,
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
	}
}

type subscriber struct {
	videoID string
	events  chan videomodel.StatusEvent
	closed  sync.Once
}

func newSubscriber(videoID string) *subscriber {
	return &subscriber{videoID: videoID, events: make(chan videomodel.StatusEvent, queueDepth)}
}

// enqueue delivers event to the subscriber's queue, dropping the oldest
// queued event if the queue is already full.
func (s *subscriber) enqueue(event videomodel.StatusEvent) {
	select {
	case s.events <- event:
		return
	default:
	}
	select {
	case <-s.events:
		metrics.Default().FanoutSlowConsumer()
	default:
	}
	select {
	case s.events <- event:
	default:
	}
}

func (s *subscriber) close() {
	s.closed.Do(func() { close(s.events) })
}

// Subscribe registers interest in videoID's status events. The returned
// channel receives every event published for that video until unsubscribe
// is called; callers must call unsubscribe exactly once.
func (svc *Service) Subscribe(videoID string) (events <-chan videomodel.StatusEvent, unsubscribe func()) {
	sub := newSubscriber(videoID)
	svc.mu.Lock()
	room := svc.subs[videoID]
	if room == nil {
		room = make(map[*subscriber]struct{})
		svc.subs[videoID] = room
	}
	room[sub] = struct{}{}
	svc.mu.Unlock()

	once := sync.Once{}
	return sub.events, func() {
		once.Do(func() {
			svc.mu.Lock()
			if room, ok := svc.subs[videoID]; ok {
				delete(room, sub)
				if len(room) == 0 {
					delete(svc.subs, videoID)
				}
			}
			svc.mu.Unlock()
			sub.close()
		})
	}
}

// Run subscribes to the bus's video:status topic and relays every event to
// the matching video's room, until ctx is cancelled or the subscription
// closes.
func (svc *Service) Run(ctx context.Context) error {
	sub, err := svc.bus.Subscribe(ctx, eventbus.TopicVideoStatus)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			svc.broadcast(event)
		}
	}
}

func (svc *Service) broadcast(event videomodel.StatusEvent) {
	svc.mu.RLock()
	room := svc.subs[event.VideoID]
	recipients := make([]*subscriber, 0, len(room))
	for s := range room {
		recipients = append(recipients, s)
	}
	svc.mu.RUnlock()

	for _, s := range recipients {
		s.enqueue(event)
	}
}
