// Package videomodel defines the domain entities shared by the ingest
// orchestrator's components: the Video lifecycle record, its UploadSession,
// and the Segment rows written by the transcoder worker.
package videomodel

import "time"

// VideoStatus enumerates the states a Video can occupy. Transitions between
// them are governed by the lifecycle controller; see internal/lifecycle.
type VideoStatus string

const (
	StatusPendingUpload VideoStatus = "pending_upload"
	StatusUploading     VideoStatus = "uploading"
	StatusProcessing    VideoStatus = "processing"
	StatusReady         VideoStatus = "ready"
	StatusFailed        VideoStatus = "failed"
	StatusCancelled     VideoStatus = "cancelled"
	StatusDeleted       VideoStatus = "deleted"
)

// SessionStatus enumerates the states an UploadSession can occupy.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// ThumbnailSpec describes the worker-generated thumbnail layout for a video.
type ThumbnailSpec struct {
	Pattern    string `json:"pattern,omitempty"`
	IntervalS  int    `json:"intervalS,omitempty"`
	SpriteURL  string `json:"spriteUrl,omitempty"`
}

// Video is the central entity: one row per ingested video. See §3.1.
type Video struct {
	ID                 string
	Title              string
	Status             VideoStatus
	SourceURL          string
	SourceSize         int64
	SourceChecksum     string
	ManifestURL        string
	DurationS          *float64
	Width              *int
	Height             *int
	Codec              string
	Bitrate            *int
	FPS                *float64
	Thumbnails         *ThumbnailSpec
	UploadSessionID    string
	ProcessingAttempts int
	LastError          string
	IsPublic           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ProcessedAt        *time.Time
	CancelledAt        *time.Time
	DeletedAt          *time.Time
}

// Ready reports whether the invariant for status=ready holds: manifest_url,
// duration_s, and processed_at are all populated.
func (v Video) Ready() bool {
	return v.Status == StatusReady && v.ManifestURL != "" && v.DurationS != nil && v.ProcessedAt != nil
}

// Part is one uploaded chunk of a multipart session.
type Part struct {
	PartNumber int
	ETag       string
	Checksum   string
	Size       int64
}

// UploadSession is one row per multipart (or, when configured, single-PUT)
// upload. See §3.2.
type UploadSession struct {
	ID                 string
	VideoID            string
	MultipartUploadID  string
	TotalParts         int
	UploadedParts      []Part
	Status             SessionStatus
	ExpiresAt          time.Time
	CreatedAt          time.Time
	CompletedAt        *time.Time
}

// PartByNumber returns the uploaded part with the given number, if present.
func (s UploadSession) PartByNumber(n int) (Part, bool) {
	for _, p := range s.UploadedParts {
		if p.PartNumber == n {
			return p, true
		}
	}
	return Part{}, false
}

// Complete reports whether every part 1..TotalParts has been recorded with
// a non-empty ETag, per the completion precondition in §4.3.4.
func (s UploadSession) Complete() bool {
	if len(s.UploadedParts) != s.TotalParts {
		return false
	}
	seen := make(map[int]bool, s.TotalParts)
	for _, p := range s.UploadedParts {
		if p.PartNumber < 1 || p.PartNumber > s.TotalParts || p.ETag == "" {
			return false
		}
		seen[p.PartNumber] = true
	}
	return len(seen) == s.TotalParts
}

// Segment is a worker-written time-aligned media chunk. PK (VideoID, Idx).
type Segment struct {
	VideoID   string
	Idx       int
	URL       string
	StartS    float64
	DurationS float64
	Size      *int64
	Keyframe  bool
}

// StatusEventResult carries the derived metadata a worker reports alongside
// a "ready" status event: manifest location, playback metadata, and the
// segment list written by the transcoder. Present only on ready events; see
// §4.2's processing->ready transition ("manifest_url + derived metadata").
type StatusEventResult struct {
	ManifestURL string          `json:"manifestUrl"`
	DurationS   float64         `json:"durationS"`
	Width       int             `json:"width,omitempty"`
	Height      int             `json:"height,omitempty"`
	Codec       string          `json:"codec,omitempty"`
	Bitrate     int             `json:"bitrate,omitempty"`
	FPS         float64         `json:"fps,omitempty"`
	Thumbnails  *ThumbnailSpec  `json:"thumbnails,omitempty"`
	Segments    []Segment       `json:"segments,omitempty"`
}

// StatusEvent is the payload published on the video:status bus topic. See
// §4.6 and §6.3.
type StatusEvent struct {
	VideoID string             `json:"videoId"`
	Status  VideoStatus        `json:"status"`
	Error   string             `json:"error,omitempty"`
	Result  *StatusEventResult `json:"result,omitempty"`
	TS      time.Time          `json:"ts"`
}

// JobPayload is the envelope enqueued onto the video-processing queue. See
// §4.5 and §6.2.
type JobPayload struct {
	VideoID   string `json:"videoId"`
	SourceURL string `json:"sourceUrl"`
}
