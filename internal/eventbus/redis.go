package eventbus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"videoingest/internal/videomodel"
)

// RedisConfig configures the Redis Streams-backed Bus. The stream key for a
// topic is Prefix + topic (default prefix "orchestrator:events:").
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Group    string
	Logger   *slog.Logger
}

// RedisBus is a Bus backed by a Redis stream per topic with one consumer
// group per replica-set and one consumer name per subscription, using the
// ensureGroup/XREADGROUP/XACK idiom against the real go-redis client.
type RedisBus struct {
	client *redis.Client
	prefix string
	group  string
	logger *slog.Logger
}

// NewRedis constructs a RedisBus from cfg.
func NewRedis(cfg RedisConfig) (*RedisBus, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("eventbus: redis addr is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "orchestrator:events:"
	}
	group := cfg.Group
	if group == "" {
		group = "fanout"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisBus{client: client, prefix: prefix, group: group, logger: logger}, nil
}

func (b *RedisBus) streamKey(topic string) string {
	return b.prefix + topic
}

func (b *RedisBus) Publish(ctx context.Context, event videomodel.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	topic := TopicVideoStatus
	stream := b.streamKey(topic)
	_, err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("eventbus: publish to %s: %w", stream, err)
	}
	return nil
}

func (b *RedisBus) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	stream := b.streamKey(topic)
	if err := b.ensureGroup(ctx, stream); err != nil {
		return nil, fmt.Errorf("eventbus: ensure group for %s: %w", stream, err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		client:   b.client,
		stream:   stream,
		group:    b.group,
		consumer: randomConsumerID(),
		events:   make(chan videomodel.StatusEvent, 64),
		cancel:   cancel,
		logger:   b.logger,
	}
	go sub.run(subCtx)
	return sub, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

func randomConsumerID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type redisSubscription struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	events   chan videomodel.StatusEvent
	cancel   context.CancelFunc
	logger   *slog.Logger
}

func (s *redisSubscription) Events() <-chan videomodel.StatusEvent { return s.events }

func (s *redisSubscription) Close() error {
	s.cancel()
	return nil
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.events)
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    32,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			s.logger.Warn("eventbus: read group failed", "stream", s.stream, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, streamResult := range res {
			for _, msg := range streamResult.Messages {
				raw, _ := msg.Values["payload"].(string)
				var event videomodel.StatusEvent
				if err := json.Unmarshal([]byte(raw), &event); err != nil {
					s.logger.Warn("eventbus: drop malformed message", "stream", s.stream, "id", msg.ID, "error", err)
					s.client.XAck(ctx, s.stream, s.group, msg.ID)
					continue
				}
				select {
				case s.events <- event:
					s.client.XAck(ctx, s.stream, s.group, msg.ID)
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
