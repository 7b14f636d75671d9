// Package lifecycle is the Video Lifecycle Controller (§4.2): the
// top-level state machine that coordinates the upload session manager,
// job queue outbox, and metadata store for each video, and reconciles
// worker-reported terminal outcomes delivered over the event bus. In-flight
// transitions are deduped by video id. Client calls drive the pending,
// processing, cancelled and deleted transitions; the background
// reconciliation loop applies only the worker's ready and failed outcomes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"videoingest/internal/eventbus"
	"videoingest/internal/objectstore"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/uploadsession"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
)

// Controller coordinates the upload session manager and the metadata
// store to implement the video state machine.
type Controller struct {
	meta     videostore.Store
	objects  objectstore.Store
	sessions *uploadsession.Manager
	bus      eventbus.Bus
	logger   *slog.Logger

	maxFileSize int64
}

// Option configures a Controller.
type Option func(*Controller)

func WithMaxFileSize(bytes int64) Option {
	return func(c *Controller) {
		if bytes > 0 {
			c.maxFileSize = bytes
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

const defaultMaxFileSize = 10 << 30 // 10 GiB

// New constructs a Controller.
func New(meta videostore.Store, objects objectstore.Store, sessions *uploadsession.Manager, bus eventbus.Bus, opts ...Option) *Controller {
	c := &Controller{
		meta:        meta,
		objects:     objects,
		sessions:    sessions,
		bus:         bus,
		logger:      slog.Default(),
		maxFileSize: defaultMaxFileSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// CreateUploadRequest is the validated input to CreateUpload.
type CreateUploadRequest struct {
	Title          string
	Filename       string
	ContentType    string
	DeclaredSize   int64
	ChecksumSHA256 *string
}

// CreateUploadResult carries both the created video id and the minted
// session, per §4.7's POST /uploads response.
type CreateUploadResult struct {
	VideoID string
	Session uploadsession.NewSessionResult
}

// CreateUpload validates the request, creates the Video row in
// pending_upload, and mints the upload session.
func (c *Controller) CreateUpload(ctx context.Context, req CreateUploadRequest) (CreateUploadResult, error) {
	if req.DeclaredSize < 1 {
		return CreateUploadResult{}, videomodel.NewValidationError("declared size must be >= 1 byte")
	}
	if req.DeclaredSize > c.maxFileSize {
		return CreateUploadResult{}, &videomodel.Error{Kind: videomodel.KindValidation, Message: fmt.Sprintf("declared size %d exceeds maximum of %d", req.DeclaredSize, c.maxFileSize)}
	}

	videoID := uuid.NewString()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.Filename
	}
	key := objectstore.SourceKey(videoID, extFromFilename(req.Filename))

	now := time.Now().UTC()
	video := videomodel.Video{
		ID:         videoID,
		Title:      title,
		Status:     videomodel.StatusPendingUpload,
		SourceURL:  key,
		SourceSize: req.DeclaredSize,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.ChecksumSHA256 != nil {
		video.SourceChecksum = *req.ChecksumSHA256
	}
	if err := c.meta.CreateVideo(ctx, video); err != nil {
		return CreateUploadResult{}, err
	}

	sessionResult, err := c.sessions.NewSession(ctx, videoID, key, req.ContentType, req.DeclaredSize, req.ChecksumSHA256)
	if err != nil {
		return CreateUploadResult{}, err
	}
	metrics.Default().UploadCreated()
	return CreateUploadResult{VideoID: videoID, Session: sessionResult}, nil
}

// RefreshURLs re-mints the presigned URLs for the video's active session.
func (c *Controller) RefreshURLs(ctx context.Context, videoID string) (uploadsession.RefreshResult, error) {
	v, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		return uploadsession.RefreshResult{}, err
	}
	if v.Status != videomodel.StatusPendingUpload {
		return uploadsession.RefreshResult{}, videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected pending_upload", videoID, v.Status))
	}
	if v.UploadSessionID == "" {
		return uploadsession.RefreshResult{}, videomodel.NewNotFoundError("upload session for video", videoID)
	}
	return c.sessions.RefreshURLs(ctx, v.UploadSessionID, v.SourceURL)
}

// RegisterPartChecksum registers a client-declared checksum for one part.
func (c *Controller) RegisterPartChecksum(ctx context.Context, videoID string, partNumber int, checksum string, size int64) error {
	v, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if v.UploadSessionID == "" {
		return videomodel.NewNotFoundError("upload session for video", videoID)
	}
	return c.sessions.RegisterPartChecksum(ctx, v.UploadSessionID, partNumber, checksum, size)
}

// Complete finalizes the upload: §4.3.4 validation, then advances the
// video to processing (the outbox dispatcher drains the enqueue
// separately). Publishes a "processing" status event on success.
func (c *Controller) Complete(ctx context.Context, videoID string) (videomodel.Video, error) {
	v, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		return videomodel.Video{}, err
	}
	completed, err := c.sessions.Complete(ctx, videoID, v.SourceURL)
	if err != nil {
		return videomodel.Video{}, err
	}
	c.publish(ctx, videoID, videomodel.StatusProcessing, "")
	metrics.Default().UploadCompleted()
	completed.Status = videomodel.StatusProcessing
	return completed, nil
}

// Abort cancels a pending upload per §4.3.5.
func (c *Controller) Abort(ctx context.Context, videoID string) error {
	v, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	return c.sessions.Abort(ctx, videoID, v.SourceURL)
}

// Status returns the video's current progress/state for GET
// /uploads/:id/status.
func (c *Controller) Status(ctx context.Context, videoID string) (videomodel.Video, error) {
	return c.meta.GetVideo(ctx, videoID)
}

// GetVideo returns full video detail.
func (c *Controller) GetVideo(ctx context.Context, videoID string) (videomodel.Video, error) {
	return c.meta.GetVideo(ctx, videoID)
}

// ListVideos returns non-deleted videos.
func (c *Controller) ListVideos(ctx context.Context) ([]videomodel.Video, error) {
	return c.meta.ListVideos(ctx)
}

// DeleteVideo soft-deletes a video from any non-terminal-deleted status
// and then deletes its source object in the same call, logging rather than
// returning a failure (§9.4: GC is best-effort at delete time, not a
// separate sweep). Processed outputs are not removed.
func (c *Controller) DeleteVideo(ctx context.Context, videoID string) error {
	v, err := c.meta.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if v.Status == videomodel.StatusDeleted {
		return nil
	}
	from := v.Status
	if err := c.meta.TransitionVideo(ctx, videoID, from, videomodel.StatusDeleted, func(video *videomodel.Video) {
		now := time.Now().UTC()
		video.DeletedAt = &now
	}); err != nil {
		return err
	}

	if err := c.objects.Delete(ctx, v.SourceURL); err != nil && !objectstore.IsNotFound(err) {
		c.logger.Warn("lifecycle: best-effort source delete failed", "video_id", videoID, "error", err)
	}
	return nil
}

// HandleWorkerEvent applies a worker-reported terminal status event to its
// video under the per-video lock, per §9.5's worker-publishes/
// controller-reconciles default. Late or duplicate events are no-ops once
// the video has left processing. The event itself is already on the bus
// (the worker published it) and reaches the fan-out service through its
// own consumer group, so this method never republishes.
func (c *Controller) HandleWorkerEvent(ctx context.Context, event videomodel.StatusEvent) error {
	switch event.Status {
	case videomodel.StatusReady:
		result := videostore.ProcessingResult{}
		if event.Result != nil {
			duration := event.Result.DurationS
			result.ManifestURL = event.Result.ManifestURL
			result.DurationS = &duration
			result.Codec = event.Result.Codec
			result.Thumbnails = event.Result.Thumbnails
			result.Segments = event.Result.Segments
			if event.Result.Width != 0 {
				width := event.Result.Width
				result.Width = &width
			}
			if event.Result.Height != 0 {
				height := event.Result.Height
				result.Height = &height
			}
			if event.Result.Bitrate != 0 {
				bitrate := event.Result.Bitrate
				result.Bitrate = &bitrate
			}
			if event.Result.FPS != 0 {
				fps := event.Result.FPS
				result.FPS = &fps
			}
		}
		err := c.meta.RecordProcessingResult(ctx, event.VideoID, true, result)
		if err != nil && !isStateConflict(err) {
			return err
		}
	case videomodel.StatusFailed:
		err := c.meta.RecordProcessingResult(ctx, event.VideoID, false, videostore.ProcessingResult{LastError: event.Error})
		if err != nil && !isStateConflict(err) {
			return err
		}
	}
	return nil
}

func (c *Controller) publish(ctx context.Context, videoID string, status videomodel.VideoStatus, errMsg string) {
	if c.bus == nil {
		return
	}
	event := videomodel.StatusEvent{VideoID: videoID, Status: status, Error: errMsg, TS: time.Now().UTC()}
	if err := c.bus.Publish(ctx, event); err != nil {
		c.logger.Warn("lifecycle: publish status event failed", "video_id", videoID, "status", status, "error", err)
	}
}

func isStateConflict(err error) bool {
	var ve *videomodel.Error
	return errors.As(err, &ve) && ve.Kind == videomodel.KindStateConflict
}

func extFromFilename(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}
