// Package memstore is an in-memory videostore.Store fake for fast,
// deterministic unit tests of the lifecycle controller and upload session
// manager, grounded on the same in-memory-fake shape as
// internal/objectstore/memstore and internal/eventbus.MemoryBus.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"videoingest/internal/videomodel"
	"videoingest/internal/videostore"
)

// Store is an in-memory videostore.Store.
type Store struct {
	mu         sync.Mutex
	videos     map[string]videomodel.Video
	sessions   map[string]videomodel.UploadSession
	outbox     []videostore.OutboxEntry
	nextOutbox int64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		videos:     make(map[string]videomodel.Video),
		sessions:   make(map[string]videomodel.UploadSession),
		nextOutbox: 1,
	}
}

func (s *Store) CreateVideo(_ context.Context, v videomodel.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	return nil
}

func (s *Store) GetVideo(_ context.Context, id string) (videomodel.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return videomodel.Video{}, videomodel.NewNotFoundError("video", id)
	}
	return v, nil
}

func (s *Store) ListVideos(_ context.Context) ([]videomodel.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]videomodel.Video, 0, len(s.videos))
	for _, v := range s.videos {
		if v.Status == videomodel.StatusDeleted || v.DeletedAt != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetVideoUploadSession(_ context.Context, videoID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return videomodel.NewNotFoundError("video", videoID)
	}
	if v.Status != videomodel.StatusPendingUpload {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is not pending_upload", videoID))
	}
	v.UploadSessionID = sessionID
	v.UpdatedAt = time.Now().UTC()
	s.videos[videoID] = v
	return nil
}

func (s *Store) CreateSession(_ context.Context, sess videomodel.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (videomodel.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return videomodel.UploadSession{}, videomodel.NewNotFoundError("upload session", id)
	}
	return sess, nil
}

func (s *Store) RefreshSessionExpiry(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return videomodel.NewNotFoundError("upload session", id)
	}
	if sess.Status != videomodel.SessionActive {
		return videomodel.NewStateConflictError("", fmt.Sprintf("upload session %s is not active", id))
	}
	sess.ExpiresAt = expiresAt
	s.sessions[id] = sess
	return nil
}

func (s *Store) RegisterPartChecksum(_ context.Context, sessionID string, part videomodel.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return videomodel.NewNotFoundError("upload session", sessionID)
	}
	if sess.Status != videomodel.SessionActive {
		return videomodel.NewStateConflictError("", fmt.Sprintf("upload session %s is not active", sessionID))
	}
	replaced := false
	for i, existing := range sess.UploadedParts {
		if existing.PartNumber == part.PartNumber {
			sess.UploadedParts[i].Checksum = part.Checksum
			if part.Size > 0 {
				sess.UploadedParts[i].Size = part.Size
			}
			replaced = true
			break
		}
	}
	if !replaced {
		sess.UploadedParts = append(sess.UploadedParts, part)
	}
	s.sessions[sessionID] = sess
	return nil
}

func (s *Store) CompleteUploadTx(_ context.Context, videoID string, fn func(v videomodel.Video, sess videomodel.UploadSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return videomodel.NewNotFoundError("video", videoID)
	}
	if v.Status != videomodel.StatusPendingUpload {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected pending_upload", videoID, v.Status))
	}
	if v.UploadSessionID == "" {
		return videomodel.NewValidationError("video %s has no upload session", videoID)
	}
	sess, ok := s.sessions[v.UploadSessionID]
	if !ok {
		return videomodel.NewNotFoundError("upload session", v.UploadSessionID)
	}
	if err := fn(v, sess); err != nil {
		return err
	}
	now := time.Now().UTC()
	v.Status = videomodel.StatusProcessing
	v.ProcessingAttempts = 0
	v.UpdatedAt = now
	sess.Status = videomodel.SessionCompleted
	sess.CompletedAt = &now
	s.videos[videoID] = v
	s.sessions[sess.ID] = sess
	s.outbox = append(s.outbox, videostore.OutboxEntry{ID: s.nextOutbox, VideoID: videoID, SourceURL: v.SourceURL})
	s.nextOutbox++
	return nil
}

func (s *Store) AbortUploadTx(_ context.Context, videoID string, fn func(v videomodel.Video, sess videomodel.UploadSession) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return videomodel.NewNotFoundError("video", videoID)
	}
	if v.Status != videomodel.StatusPendingUpload {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected pending_upload", videoID, v.Status))
	}
	var sess videomodel.UploadSession
	if v.UploadSessionID != "" {
		sess = s.sessions[v.UploadSessionID]
	}
	if err := fn(v, sess); err != nil {
		return err
	}
	now := time.Now().UTC()
	v.Status = videomodel.StatusCancelled
	v.CancelledAt = &now
	v.UpdatedAt = now
	s.videos[videoID] = v
	if sess.ID != "" {
		sess.Status = videomodel.SessionFailed
		s.sessions[sess.ID] = sess
	}
	return nil
}

func (s *Store) TransitionVideo(_ context.Context, id string, from, to videomodel.VideoStatus, mutate func(v *videomodel.Video)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return videomodel.NewNotFoundError("video", id)
	}
	if v.Status != from {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected %s", id, v.Status, from))
	}
	if mutate != nil {
		mutate(&v)
	}
	v.Status = to
	v.UpdatedAt = time.Now().UTC()
	s.videos[id] = v
	return nil
}

func (s *Store) ExpireSession(_ context.Context, sessionID, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if sess.Status != videomodel.SessionActive {
		return nil
	}
	sess.Status = videomodel.SessionExpired
	s.sessions[sessionID] = sess

	v, ok := s.videos[sess.VideoID]
	if !ok {
		return nil
	}
	if v.Status == videomodel.StatusPendingUpload {
		now := time.Now().UTC()
		v.Status = videomodel.StatusFailed
		v.LastError = lastError
		v.UpdatedAt = now
		s.videos[sess.VideoID] = v
	}
	return nil
}

func (s *Store) ListExpiredSessionIDs(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if sess.Status != videomodel.SessionActive {
			continue
		}
		if sess.ExpiresAt.After(now) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > limit && limit > 0 {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) DrainOutbox(_ context.Context, limit int) ([]videostore.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []videostore.OutboxEntry
	for _, entry := range s.outbox {
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	published := make(map[int64]bool, len(ids))
	for _, id := range ids {
		published[id] = true
	}
	remaining := s.outbox[:0]
	for _, entry := range s.outbox {
		if !published[entry.ID] {
			remaining = append(remaining, entry)
		}
	}
	s.outbox = remaining
	return nil
}

func (s *Store) RecordProcessingResult(_ context.Context, videoID string, ready bool, result videostore.ProcessingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[videoID]
	if !ok {
		return videomodel.NewNotFoundError("video", videoID)
	}
	if v.Status != videomodel.StatusProcessing {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected processing", videoID, v.Status))
	}
	v.ProcessingAttempts++
	now := time.Now().UTC()
	if ready {
		v.Status = videomodel.StatusReady
		v.ManifestURL = result.ManifestURL
		v.DurationS = result.DurationS
		v.Width = result.Width
		v.Height = result.Height
		v.Codec = result.Codec
		v.Bitrate = result.Bitrate
		v.FPS = result.FPS
		v.Thumbnails = result.Thumbnails
		v.ProcessedAt = &now
	} else {
		v.Status = videomodel.StatusFailed
		v.LastError = result.LastError
	}
	v.UpdatedAt = now
	s.videos[videoID] = v
	return nil
}

func (s *Store) Close() {}

var _ videostore.Store = (*Store)(nil)
