// Package videostore is the Metadata Store (§4, item 4): the pgx/pgxpool
// relational source of truth for Video and UploadSession state, enforcing
// the lifecycle invariants in §3, covering the full video/upload_sessions/
// segments/job_outbox schema in migrations/0001_init.sql.
package videostore

import (
	"context"
	"time"

	"videoingest/internal/videomodel"
)

// Store is the persistence contract the lifecycle controller and upload
// session manager depend on. Every method that advances state does so
// under the locking discipline of §5: either a per-row pessimistic lock
// (Postgres SELECT ... FOR UPDATE) or a status-guarded CAS.
type Store interface {
	// CreateVideo inserts a new Video in status pending_upload.
	CreateVideo(ctx context.Context, v videomodel.Video) error
	// GetVideo fetches a video by id. Returns videomodel.KindNotFound if absent.
	GetVideo(ctx context.Context, id string) (videomodel.Video, error)
	// ListVideos returns non-deleted videos ordered by created_at descending.
	ListVideos(ctx context.Context) ([]videomodel.Video, error)
	// SetVideoUploadSession links a freshly minted session to its video.
	// Valid only while the video is pending_upload.
	SetVideoUploadSession(ctx context.Context, videoID, sessionID string) error

	// CreateSession inserts a new UploadSession row.
	CreateSession(ctx context.Context, s videomodel.UploadSession) error
	// GetSession fetches a session by id.
	GetSession(ctx context.Context, id string) (videomodel.UploadSession, error)
	// RefreshSessionExpiry bumps expires_at for an active session.
	RefreshSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// RegisterPartChecksum upserts the checksum/size for one uploaded part.
	RegisterPartChecksum(ctx context.Context, sessionID string, part videomodel.Part) error

	// CompleteUploadTx runs the §4.3.4 completion transaction: it loads the
	// video and session under FOR UPDATE, invokes fn with both (fn performs
	// the provider CompleteMultipart call and any checksum validation), and
	// if fn succeeds, advances video to processing, session to completed,
	// and inserts the outbox row, all atomically. fn's returned error
	// aborts the transaction without mutating state.
	CompleteUploadTx(ctx context.Context, videoID string, fn func(v videomodel.Video, s videomodel.UploadSession) error) error

	// AbortUploadTx advances the video to cancelled and the session to
	// failed, atomically, after fn (the provider AbortMultipart call)
	// succeeds.
	AbortUploadTx(ctx context.Context, videoID string, fn func(v videomodel.Video, s videomodel.UploadSession) error) error

	// TransitionVideo performs a single CAS: advance id from `from` to `to`
	// if its current status equals `from`, applying mutate to the in-flight
	// row first. Returns videomodel.KindStateConflict if the precondition
	// fails.
	TransitionVideo(ctx context.Context, id string, from, to videomodel.VideoStatus, mutate func(v *videomodel.Video)) error

	// ExpireSession marks a session expired and its owning video failed,
	// used by the abandoned-upload collector (§4.4). No-op (not an error)
	// if the session is no longer active.
	ExpireSession(ctx context.Context, sessionID, lastError string) error

	// ListExpiredSessionIDs returns ids of active sessions whose expires_at
	// has passed as of now, for the periodic session-expiry sweep. Distinct
	// from the abandoned-multipart collector (§4.4): single-PUT sessions
	// never create a provider-side multipart upload, so this is the only
	// sweep that reclaims a presigned URL nobody ever used.
	ListExpiredSessionIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	// DrainOutbox returns up to limit unpublished outbox rows ordered by id.
	DrainOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	// MarkOutboxPublished marks the given outbox row ids as published.
	MarkOutboxPublished(ctx context.Context, ids []int64) error

	// RecordProcessingResult applies a worker-reported terminal outcome
	// (ready or failed) to a video under CAS from processing, mirroring
	// attempts per §9.3.
	RecordProcessingResult(ctx context.Context, videoID string, ready bool, result ProcessingResult) error

	Close()
}

// OutboxEntry is an undelivered job-enqueue intent written in the same
// transaction as a video's pending_upload -> processing transition.
type OutboxEntry struct {
	ID        int64
	VideoID   string
	SourceURL string
}

// ProcessingResult carries the worker-derived fields applied on ready, or
// the failure message applied on failed, via RecordProcessingResult.
type ProcessingResult struct {
	ManifestURL string
	DurationS   *float64
	Width       *int
	Height      *int
	Codec       string
	Bitrate     *int
	FPS         *float64
	Thumbnails  *videomodel.ThumbnailSpec
	Segments    []videomodel.Segment
	LastError   string
}
