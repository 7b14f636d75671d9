package videostore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"videoingest/internal/videomodel"
)

func (s *PostgresStore) CreateVideo(ctx context.Context, v videomodel.Video) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
INSERT INTO videos (id, title, status, source_url, source_size, source_checksum, codec, is_public, upload_session_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
`, v.ID, v.Title, string(v.Status), v.SourceURL, v.SourceSize, nullString(v.SourceChecksum), v.Codec, v.IsPublic, nullString(v.UploadSessionID), v.CreatedAt)
	if err != nil {
		return fmt.Errorf("videostore: create video %s: %w", v.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetVideo(ctx context.Context, id string) (videomodel.Video, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	row := s.pool.QueryRow(ctx, videoSelectColumns+` FROM videos WHERE id = $1`, id)
	v, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.Video{}, videomodel.NewNotFoundError("video", id)
		}
		return videomodel.Video{}, fmt.Errorf("videostore: get video %s: %w", id, err)
	}
	return v, nil
}

func (s *PostgresStore) SetVideoUploadSession(ctx context.Context, videoID, sessionID string) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `UPDATE videos SET upload_session_id=$2, updated_at=now() WHERE id=$1 AND status='pending_upload'`, videoID, sessionID)
	if err != nil {
		return fmt.Errorf("videostore: set upload session for %s: %w", videoID, err)
	}
	if tag.RowsAffected() == 0 {
		return videomodel.NewStateConflictError("", fmt.Sprintf("video %s is not pending_upload", videoID))
	}
	return nil
}

func (s *PostgresStore) ListVideos(ctx context.Context) ([]videomodel.Video, error) {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, videoSelectColumns+` FROM videos WHERE status <> 'deleted' AND deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("videostore: list videos: %w", err)
	}
	defer rows.Close()

	var out []videomodel.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("videostore: scan video row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("videostore: iterate videos: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) TransitionVideo(ctx context.Context, id string, from, to videomodel.VideoStatus, mutate func(v *videomodel.Video)) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("videostore: begin transition %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, videoSelectColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id)
	v, err := scanVideo(row)
	if err != nil {
		if isNoRows(err) {
			return videomodel.NewNotFoundError("video", id)
		}
		return fmt.Errorf("videostore: lock video %s: %w", id, err)
	}
	if v.Status != from {
		return videomodel.NewStateConflictError(v.Status, fmt.Sprintf("video %s is %s, expected %s", id, v.Status, from))
	}
	if mutate != nil {
		mutate(&v)
	}
	v.Status = to

	thumbs, err := marshalThumbnails(v.Thumbnails)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
UPDATE videos SET status=$2, manifest_url=$3, duration_s=$4, width=$5, height=$6, codec=$7, bitrate=$8, fps=$9,
  thumbnails=$10, processing_attempts=$11, last_error=$12, updated_at=now(), processed_at=$13, cancelled_at=$14, deleted_at=$15
WHERE id=$1
`, id, string(v.Status), nullString(v.ManifestURL), v.DurationS, v.Width, v.Height, v.Codec, v.Bitrate, v.FPS,
		thumbs, v.ProcessingAttempts, nullString(v.LastError), v.ProcessedAt, v.CancelledAt, v.DeletedAt)
	if err != nil {
		return fmt.Errorf("videostore: update video %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("videostore: commit transition %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) RecordProcessingResult(ctx context.Context, videoID string, ready bool, result ProcessingResult) error {
	to := videomodel.StatusFailed
	if ready {
		to = videomodel.StatusReady
	}
	err := s.TransitionVideo(ctx, videoID, videomodel.StatusProcessing, to, func(v *videomodel.Video) {
		v.ProcessingAttempts++
		if ready {
			now := time.Now().UTC()
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
			v.LastError = result.LastError
		}
	})
	if err != nil {
		return err
	}
	if ready && len(result.Segments) > 0 {
		if err := s.insertSegments(ctx, videoID, result.Segments); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertSegments(ctx context.Context, videoID string, segments []videomodel.Segment) error {
	ctx, cancel := s.operationContext(ctx)
	defer cancel()
	batch := &pgx.Batch{}
	for _, seg := range segments {
		batch.Queue(`
INSERT INTO segments (video_id, idx, url, start_s, duration_s, size, keyframe)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (video_id, idx) DO UPDATE SET url=EXCLUDED.url, start_s=EXCLUDED.start_s, duration_s=EXCLUDED.duration_s, size=EXCLUDED.size, keyframe=EXCLUDED.keyframe
`, videoID, seg.Idx, seg.URL, seg.StartS, seg.DurationS, seg.Size, seg.Keyframe)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range segments {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("videostore: insert segment for video %s: %w", videoID, err)
		}
	}
	return nil
}

const videoSelectColumns = `
SELECT id, title, status, source_url, source_size, source_checksum, manifest_url, duration_s, width, height,
       codec, bitrate, fps, thumbnails, upload_session_id, processing_attempts, last_error, is_public,
       created_at, updated_at, processed_at, cancelled_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (videomodel.Video, error) {
	var v videomodel.Video
	var status string
	var sourceChecksum, manifestURL, codec, lastError, uploadSessionID *string
	var thumbsRaw []byte
	if err := row.Scan(
		&v.ID, &v.Title, &status, &v.SourceURL, &v.SourceSize, &sourceChecksum, &manifestURL, &v.DurationS,
		&v.Width, &v.Height, &codec, &v.Bitrate, &v.FPS, &thumbsRaw, &uploadSessionID, &v.ProcessingAttempts,
		&lastError, &v.IsPublic, &v.CreatedAt, &v.UpdatedAt, &v.ProcessedAt, &v.CancelledAt, &v.DeletedAt,
	); err != nil {
		return videomodel.Video{}, err
	}
	v.Status = videomodel.VideoStatus(status)
	v.SourceChecksum = derefString(sourceChecksum)
	v.ManifestURL = derefString(manifestURL)
	v.Codec = derefString(codec)
	v.LastError = derefString(lastError)
	v.UploadSessionID = derefString(uploadSessionID)
	if len(thumbsRaw) > 0 {
		var spec videomodel.ThumbnailSpec
		if err := json.Unmarshal(thumbsRaw, &spec); err == nil {
			v.Thumbnails = &spec
		}
	}
	return v, nil
}

func marshalThumbnails(spec *videomodel.ThumbnailSpec) ([]byte, error) {
	if spec == nil {
		return nil, nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("videostore: marshal thumbnails: %w", err)
	}
	return data, nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
