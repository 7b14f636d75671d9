package videostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"videoingest/internal/videomodel"
)

func (s *PostgresStore) CreateSession(ctx context.Context, sess videomodel.UploadSession) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	parts, err := json.Marshal(sess.UploadedParts)
	if err != nil {
		return fmt.Errorf("videostore: marshal uploaded parts: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO upload_sessions (id, video_id, multipart_upload_id, total_parts, uploaded_parts, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, sess.ID, sess.VideoID, nullString(sess.MultipartUploadID), sess.TotalParts, parts, string(sess.Status), sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("videostore: create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (videomodel.UploadSession, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	row := s.pool.QueryRow(ctx, sessionSelectColumns+` FROM upload_sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.UploadSession{}, videomodel.NewNotFoundError("upload session", id)
		}
		return videomodel.UploadSession{}, fmt.Errorf("videostore: get session %s: %w", id, err)
	}
	return sess, nil
}

func (s *PostgresStore) RefreshSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `UPDATE upload_sessions SET expires_at=$2 WHERE id=$1 AND status='active'`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("videostore: refresh session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return videomodel.NewStateConflictError("", fmt.Sprintf("upload session %s is not active", id))
	}
	return nil
}

func (s *PostgresStore) RegisterPartChecksum(ctx context.Context, sessionID string, part videomodel.Part) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("videostore: begin part checksum %s: %w", sessionID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, sessionSelectColumns+` FROM upload_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.NewNotFoundError("upload session", sessionID)
		}
		return fmt.Errorf("videostore: lock session %s: %w", sessionID, err)
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

	parts, err := json.Marshal(sess.UploadedParts)
	if err != nil {
		return fmt.Errorf("videostore: marshal uploaded parts: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE upload_sessions SET uploaded_parts=$2 WHERE id=$1`, sessionID, parts); err != nil {
		return fmt.Errorf("videostore: update parts %s: %w", sessionID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("videostore: commit part checksum %s: %w", sessionID, err)
	}
	return nil
}

// CompleteUploadTx implements the §4.3.4 completion transaction: lock video
// and session, run fn (provider completion + checksum validation), then on
// success advance video->processing, session->completed, and insert the
// outbox row, all before commit.
func (s *PostgresStore) CompleteUploadTx(ctx context.Context, videoID string, fn func(v videomodel.Video, sess videomodel.UploadSession) error) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("videostore: begin complete %s: %w", videoID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, videoSelectColumns+` FROM videos WHERE id = $1 FOR UPDATE`, videoID)
	v, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.NewNotFoundError("video", videoID)
		}
		return fmt.Errorf("videostore: lock video %s: %w", videoID, err)
	}
	if v.Status != videomodel.StatusPendingUpload {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected pending_upload", videoID, v.Status))
	}
	if v.UploadSessionID == "" {
		return videomodel.NewValidationError("video %s has no upload session", videoID)
	}

	sessRow := tx.QueryRow(ctx, sessionSelectColumns+` FROM upload_sessions WHERE id = $1 FOR UPDATE`, v.UploadSessionID)
	sess, err := scanSession(sessRow)
	if err != nil {
		if isNoRows(err) {
			return videomodel.NewNotFoundError("upload session", v.UploadSessionID)
		}
		return fmt.Errorf("videostore: lock session %s: %w", v.UploadSessionID, err)
	}

	if err := fn(v, sess); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE videos SET status='processing', processing_attempts=0, updated_at=$2 WHERE id=$1`, videoID, now); err != nil {
		return fmt.Errorf("videostore: advance video %s: %w", videoID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE upload_sessions SET status='completed', completed_at=$2 WHERE id=$1`, sess.ID, now); err != nil {
		return fmt.Errorf("videostore: complete session %s: %w", sess.ID, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO job_outbox (video_id, source_url, created_at) VALUES ($1, $2, $3)`, videoID, v.SourceURL, now); err != nil {
		return fmt.Errorf("videostore: insert outbox row for %s: %w", videoID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("videostore: commit complete %s: %w", videoID, err)
	}
	return nil
}

// AbortUploadTx implements §4.3.5: lock video and session, run fn (provider
// AbortMultipart), then advance video->cancelled, session->failed.
func (s *PostgresStore) AbortUploadTx(ctx context.Context, videoID string, fn func(v videomodel.Video, sess videomodel.UploadSession) error) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("videostore: begin abort %s: %w", videoID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, videoSelectColumns+` FROM videos WHERE id = $1 FOR UPDATE`, videoID)
	v, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.NewNotFoundError("video", videoID)
		}
		return fmt.Errorf("videostore: lock video %s: %w", videoID, err)
	}
	if v.Status != videomodel.StatusPendingUpload {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected pending_upload", videoID, v.Status))
	}

	var sess videomodel.UploadSession
	if v.UploadSessionID != "" {
		sessRow := tx.QueryRow(ctx, sessionSelectColumns+` FROM upload_sessions WHERE id = $1 FOR UPDATE`, v.UploadSessionID)
		sess, err = scanSession(sessRow)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("videostore: lock session %s: %w", v.UploadSessionID, err)
		}
	}

	if err := fn(v, sess); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE videos SET status='cancelled', cancelled_at=$2, updated_at=$2 WHERE id=$1`, videoID, now); err != nil {
		return fmt.Errorf("videostore: cancel video %s: %w", videoID, err)
	}
	if sess.ID != "" {
		if _, err := tx.Exec(ctx, `UPDATE upload_sessions SET status='failed' WHERE id=$1`, sess.ID); err != nil {
			return fmt.Errorf("videostore: fail session %s: %w", sess.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("videostore: commit abort %s: %w", videoID, err)
	}
	return nil
}

func (s *PostgresStore) ExpireSession(ctx context.Context, sessionID, lastError string) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("videostore: begin expire %s: %w", sessionID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, sessionSelectColumns+` FROM upload_sessions WHERE id = $1 FOR UPDATE`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return nil
		}
		return fmt.Errorf("videostore: lock session %s: %w", sessionID, err)
	}
	if sess.Status != videomodel.SessionActive {
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `UPDATE upload_sessions SET status='expired' WHERE id=$1`, sessionID); err != nil {
		return fmt.Errorf("videostore: expire session %s: %w", sessionID, err)
	}

	videoRow := tx.QueryRow(ctx, videoSelectColumns+` FROM videos WHERE id = $1 FOR UPDATE`, sess.VideoID)
	v, err := scanVideo(videoRow)
	if err != nil {
		if isNoRows(err) {
			return tx.Commit(ctx)
		}
		return fmt.Errorf("videostore: lock video %s: %w", sess.VideoID, err)
	}
	if v.Status == videomodel.StatusPendingUpload {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `UPDATE videos SET status='failed', last_error=$2, updated_at=$3 WHERE id=$1`, v.ID, lastError, now); err != nil {
			return fmt.Errorf("videostore: fail video %s: %w", v.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("videostore: commit expire %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) ListExpiredSessionIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM upload_sessions WHERE status='active' AND expires_at <= $1 ORDER BY expires_at LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("videostore: list expired sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("videostore: scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) DrainOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT id, video_id, source_url FROM job_outbox WHERE published_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("videostore: drain outbox: %w", err)
	}
	defer rows.Close()
	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.VideoID, &e.SourceURL); err != nil {
			return nil, fmt.Errorf("videostore: scan outbox row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `UPDATE job_outbox SET published_at=now() WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("videostore: mark outbox published: %w", err)
	}
	return nil
}

const sessionSelectColumns = `SELECT id, video_id, multipart_upload_id, total_parts, uploaded_parts, status, expires_at, created_at, completed_at`

func scanSession(row rowScanner) (videomodel.UploadSession, error) {
	var sess videomodel.UploadSession
	var multipartID *string
	var status string
	var partsRaw []byte
	if err := row.Scan(&sess.ID, &sess.VideoID, &multipartID, &sess.TotalParts, &partsRaw, &status, &sess.ExpiresAt, &sess.CreatedAt, &sess.CompletedAt); err != nil {
		return videomodel.UploadSession{}, err
	}
	sess.MultipartUploadID = derefString(multipartID)
	sess.Status = videomodel.SessionStatus(status)
	if len(partsRaw) > 0 {
		if err := json.Unmarshal(partsRaw, &sess.UploadedParts); err != nil {
			return videomodel.UploadSession{}, fmt.Errorf("videostore: unmarshal uploaded parts: %w", err)
		}
	}
	return sess, nil
}
