package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"videoingest/internal/videostore"
)

const sessionPurgeBatch = 200

// sessionPurger reclaims upload sessions whose presigned URLs expired
// without the client ever completing or aborting them. Distinct from
// internal/collector's abandoned-multipart sweep: a single-PUT session
// never creates a provider-side multipart upload, so it never shows up
// there.
type sessionPurger interface {
	PurgeExpired(ctx context.Context) error
}

type storeSessionPurger struct {
	store videostore.Store
}

func newStoreSessionPurger(store videostore.Store) sessionPurger {
	return &storeSessionPurger{store: store}
}

func (p *storeSessionPurger) PurgeExpired(ctx context.Context) error {
	ids, err := p.store.ListExpiredSessionIDs(ctx, time.Now().UTC(), sessionPurgeBatch)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := p.store.ExpireSession(ctx, id, "upload session expired"); err != nil {
			return err
		}
	}
	return nil
}

type purgeTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) purgeTicker

func startSessionPurgeWorker(ctx context.Context, logger *slog.Logger, sessions sessionPurger, interval time.Duration) func() {
	return startSessionPurgeWorkerWithTicker(ctx, logger, sessions, interval, func(d time.Duration) purgeTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func startSessionPurgeWorkerWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	sessions sessionPurger,
	interval time.Duration,
	newTicker tickerFactory,
) func() {
	if sessions == nil || interval <= 0 {
		return func() {}
	}
	workerCtx, cancel := context.WithCancel(ctx)
	ticker := newTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C():
				if err := sessions.PurgeExpired(workerCtx); err != nil && logger != nil {
					logger.Error("failed to purge expired upload sessions", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}
