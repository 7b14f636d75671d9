// Package collector implements the Abandoned-Upload Collector (§4.4): a
// periodic sweep that aborts multipart uploads nobody ever completed or
// cancelled, so they stop accruing provider storage cost and their videos
// stop sitting in pending_upload forever.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"videoingest/internal/objectstore"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
)

const (
	defaultInterval    = 6 * time.Hour
	defaultAbandonedAt = 24 * time.Hour
	defaultConcurrency = 8
	sourcePrefix       = "sources/"
)

// Collector periodically lists incomplete multipart uploads under the
// source prefix and aborts the ones old enough to be abandoned.
type Collector struct {
	objects objectstore.Store
	meta    videostore.Store
	logger  *slog.Logger

	interval    time.Duration
	abandonedAt time.Duration
	concurrency int
}

// Option configures a Collector.
type Option func(*Collector)

// WithInterval overrides the default 6h sweep interval.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithAbandonedAfter overrides the default 24h abandoned-upload threshold.
func WithAbandonedAfter(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.abandonedAt = d
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency bounds how many reaps run in parallel per sweep.
func WithConcurrency(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New constructs a Collector.
func New(objects objectstore.Store, meta videostore.Store, opts ...Option) *Collector {
	c := &Collector{
		objects:     objects,
		meta:        meta,
		logger:      slog.Default(),
		interval:    defaultInterval,
		abandonedAt: defaultAbandonedAt,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run drives the sweep on a ticker until ctx is cancelled. The first sweep
// runs immediately rather than waiting a full interval.
func (c *Collector) Run(ctx context.Context) error {
	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Collector) sweep(ctx context.Context) {
	uploads, err := c.objects.ListIncompleteMultipart(ctx, sourcePrefix)
	if err != nil {
		c.logger.Warn("collector: list incomplete multipart uploads failed", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-c.abandonedAt)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, upload := range uploads {
		if upload.InitiatedAt.After(cutoff) {
			continue
		}
		upload := upload
		g.Go(func() error {
			c.reap(gctx, upload)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Collector) reap(ctx context.Context, upload objectstore.IncompleteUpload) {
	videoID := videoIDFromKey(upload.Key)
	if videoID == "" {
		c.logger.Warn("collector: could not parse video id from key", "key", upload.Key)
		return
	}

	if err := c.objects.AbortMultipart(ctx, upload.Key, upload.UploadID); err != nil && !objectstore.IsNotFound(err) {
		c.logger.Warn("collector: abort multipart failed", "video_id", videoID, "key", upload.Key, "error", err)
		return
	}

	video, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		if !isNotFound(err) {
			c.logger.Warn("collector: get video failed", "video_id", videoID, "error", err)
		}
		return
	}
	if video.UploadSessionID == "" {
		return
	}
	if err := c.meta.ExpireSession(ctx, video.UploadSessionID, "upload expired"); err != nil {
		c.logger.Warn("collector: expire session failed", "video_id", videoID, "session_id", video.UploadSessionID, "error", err)
		return
	}

	metrics.Default().CollectorAborted()
	c.logger.Info("collector: aborted abandoned upload", "video_id", videoID, "key", upload.Key, "upload_id", upload.UploadID)
}

func isNotFound(err error) bool {
	var ve *videomodel.Error
	return errors.As(err, &ve) && ve.Kind == videomodel.KindNotFound
}

// videoIDFromKey extracts the video id from a source key of the form
// "sources/<video_id>/original[.ext]", per §6.1's key layout.
func videoIDFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 || parts[0] != "sources" {
		return ""
	}
	return parts[1]
}
