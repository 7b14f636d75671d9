package uploadsession

import (
	"context"
	"fmt"
	"time"

	"videoingest/internal/objectstore"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
)

// Manager implements session selection, refresh, checksum registration,
// completion, and abort against an object-store adapter and the metadata
// store.
type Manager struct {
	objects objectstore.Store
	meta    videostore.Store
	cfg     Config
}

// New constructs a Manager.
func New(objects objectstore.Store, meta videostore.Store, opts ...Option) *Manager {
	return &Manager{objects: objects, meta: meta, cfg: newConfig(opts...)}
}

// NewSessionResult describes the minted session, returned to the HTTP
// surface per §4.7's POST /uploads response shapes.
type NewSessionResult struct {
	SessionID         string
	Multipart         bool
	UploadURL         string
	MultipartUploadID string
	PartURLs          []string
	PartSize          int64
	NumParts          int
	ExpiresAt         time.Time
}

// NewSession selects single-PUT or multipart per §4.3.1, mints the
// presigned URL(s), and persists the session (linking it to videoID, which
// must already exist in pending_upload).
func (m *Manager) NewSession(ctx context.Context, videoID, key, contentType string, declaredSize int64, checksumSHA256 *string) (NewSessionResult, error) {
	if declaredSize < 1 {
		return NewSessionResult{}, videomodel.NewValidationError("declared size must be >= 1 byte")
	}

	sessionID := newID()
	expiresAt := time.Now().UTC().Add(m.cfg.PresignTTL)

	if declaredSize <= m.cfg.MultipartThreshold {
		url, err := m.objects.MintSinglePut(ctx, key, contentType, m.cfg.PresignTTL, checksumSHA256)
		if err != nil {
			return NewSessionResult{}, wrapStorageErr(err)
		}
		if m.cfg.PersistSingleAsSession {
			sess := videomodel.UploadSession{
				ID:         sessionID,
				VideoID:    videoID,
				TotalParts: 1,
				Status:     videomodel.SessionActive,
				ExpiresAt:  expiresAt,
				CreatedAt:  time.Now().UTC(),
			}
			if err := m.meta.CreateSession(ctx, sess); err != nil {
				return NewSessionResult{}, err
			}
			if err := m.meta.SetVideoUploadSession(ctx, videoID, sessionID); err != nil {
				return NewSessionResult{}, err
			}
		}
		return NewSessionResult{SessionID: sessionID, Multipart: false, UploadURL: url, PartSize: declaredSize, NumParts: 1, ExpiresAt: expiresAt}, nil
	}

	partSize := m.cfg.MultipartChunkBytes
	if partSize < minPartBytes {
		partSize = minPartBytes
	}
	numParts := int((declaredSize + partSize - 1) / partSize)
	if numParts > m.cfg.MaxParts {
		return NewSessionResult{}, &videomodel.Error{Kind: videomodel.KindValidation, Message: fmt.Sprintf("upload requires %d parts, exceeds limit of %d", numParts, m.cfg.MaxParts)}
	}

	uploadID, err := m.objects.InitiateMultipart(ctx, key, contentType)
	if err != nil {
		return NewSessionResult{}, wrapStorageErr(err)
	}

	partURLs := make([]string, numParts)
	for i := 0; i < numParts; i++ {
		url, err := m.objects.MintPartPut(ctx, key, uploadID, i+1, m.cfg.PresignTTL)
		if err != nil {
			_ = m.objects.AbortMultipart(ctx, key, uploadID)
			return NewSessionResult{}, wrapStorageErr(err)
		}
		partURLs[i] = url
	}

	sess := videomodel.UploadSession{
		ID:                sessionID,
		VideoID:           videoID,
		MultipartUploadID: uploadID,
		TotalParts:        numParts,
		Status:            videomodel.SessionActive,
		ExpiresAt:         expiresAt,
		CreatedAt:         time.Now().UTC(),
	}
	if err := m.meta.CreateSession(ctx, sess); err != nil {
		return NewSessionResult{}, err
	}
	if err := m.meta.SetVideoUploadSession(ctx, videoID, sessionID); err != nil {
		return NewSessionResult{}, err
	}

	return NewSessionResult{
		SessionID:         sessionID,
		Multipart:         true,
		MultipartUploadID: uploadID,
		PartURLs:          partURLs,
		PartSize:          partSize,
		NumParts:          numParts,
		ExpiresAt:         expiresAt,
	}, nil
}

// RefreshResult is the response to a refresh-urls request.
type RefreshResult struct {
	PartURLs  []string
	PartSize  int64
	ExpiresAt time.Time
}

// RefreshURLs re-mints every part URL for an active session, per §4.3.2.
func (m *Manager) RefreshURLs(ctx context.Context, sessionID, key string) (RefreshResult, error) {
	sess, err := m.meta.GetSession(ctx, sessionID)
	if err != nil {
		return RefreshResult{}, err
	}
	if sess.Status != videomodel.SessionActive {
		return RefreshResult{}, videomodel.NewStateConflictError("", fmt.Sprintf("upload session %s is not active", sessionID))
	}
	expiresAt := time.Now().UTC().Add(m.cfg.PresignTTL)

	if sess.MultipartUploadID == "" {
		// Single-PUT session: re-mint the one PUT URL.
		url, err := m.objects.MintSinglePut(ctx, key, "", m.cfg.PresignTTL, nil)
		if err != nil {
			return RefreshResult{}, wrapStorageErr(err)
		}
		if err := m.meta.RefreshSessionExpiry(ctx, sessionID, expiresAt); err != nil {
			return RefreshResult{}, err
		}
		return RefreshResult{PartURLs: []string{url}, ExpiresAt: expiresAt}, nil
	}

	partURLs := make([]string, sess.TotalParts)
	for i := 0; i < sess.TotalParts; i++ {
		url, err := m.objects.MintPartPut(ctx, key, sess.MultipartUploadID, i+1, m.cfg.PresignTTL)
		if err != nil {
			return RefreshResult{}, wrapStorageErr(err)
		}
		partURLs[i] = url
	}
	if err := m.meta.RefreshSessionExpiry(ctx, sessionID, expiresAt); err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{PartURLs: partURLs, ExpiresAt: expiresAt}, nil
}

// RegisterPartChecksum records a client-declared checksum for later
// completion-time verification, per §4.3.3.
func (m *Manager) RegisterPartChecksum(ctx context.Context, sessionID string, partNumber int, checksum string, size int64) error {
	if partNumber < 1 {
		return videomodel.NewValidationError("part_number must be >= 1")
	}
	return m.meta.RegisterPartChecksum(ctx, sessionID, videomodel.Part{PartNumber: partNumber, Checksum: checksum, Size: size})
}

// Abort cancels an in-flight session per §4.3.5: aborts any multipart
// upload (idempotent), deletes the source object if it was already
// finalized, and advances the video to cancelled.
func (m *Manager) Abort(ctx context.Context, videoID, key string) error {
	return m.meta.AbortUploadTx(ctx, videoID, func(_ videomodel.Video, sess videomodel.UploadSession) error {
		if sess.MultipartUploadID != "" {
			if err := m.objects.AbortMultipart(ctx, key, sess.MultipartUploadID); err != nil {
				return wrapStorageErr(err)
			}
		}
		if _, err := m.objects.Head(ctx, key); err == nil {
			_ = m.objects.Delete(ctx, key)
		}
		return nil
	})
}

func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*objectstore.Error); ok {
		severity := videomodel.StorageTransient
		if !se.Kind.Retryable() {
			severity = videomodel.StoragePermanent
		}
		return videomodel.NewStorageError(severity, se)
	}
	return videomodel.NewStorageError(videomodel.StoragePermanent, err)
}
