package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"videoingest/internal/videomodel"
)

// RedisConfig configures the Redis Streams-backed Producer.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	StreamKey   string
	Attempts    int
	BackoffBase time.Duration
}

// RedisProducer is a Producer backed by a Redis stream, trimmed to retain
// the last 1100 entries (completed + dead-letter budget from §4.5) via
// MAXLEN ~ trimming on XADD.
type RedisProducer struct {
	client      *redis.Client
	streamKey   string
	attempts    int
	backoffBase time.Duration
}

// NewRedis constructs a RedisProducer from cfg.
func NewRedis(cfg RedisConfig) (*RedisProducer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("jobqueue: redis addr is required")
	}
	streamKey := cfg.StreamKey
	if streamKey == "" {
		streamKey = "orchestrator:queue:" + QueueName
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return &RedisProducer{client: client, streamKey: streamKey, attempts: attempts, backoffBase: backoffBase}, nil
}

// envelope is the wire format persisted on the stream; it carries the retry
// budget and backoff base alongside the job payload so a worker can honor
// §4.5's retry policy without a side lookup.
type envelope struct {
	Job         videomodel.JobPayload `json:"job"`
	Attempts    int                   `json:"attempts"`
	BackoffBase string                `json:"backoffBase"`
	EnqueuedAt  time.Time             `json:"enqueuedAt"`
}

func (p *RedisProducer) Enqueue(ctx context.Context, job videomodel.JobPayload) error {
	env := envelope{Job: job, Attempts: p.attempts, BackoffBase: p.backoffBase.String(), EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("jobqueue: marshal envelope: %w", err)
	}
	_, err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamKey,
		MaxLen: 1100,
		Approx: true,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("jobqueue: enqueue to %s: %w", p.streamKey, err)
	}
	return nil
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}

var _ Producer = (*RedisProducer)(nil)
