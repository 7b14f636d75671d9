package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"videoingest/internal/objectstore"
	"videoingest/internal/videomodel"
)

// videoDTO is the wire shape for Video, camelCased per §3.1. json.Marshal
// across *time.Time/*float64/*int fields naturally omits nil optionals.
type videoDTO struct {
	ID                 string                    `json:"id"`
	Title              string                    `json:"title"`
	Status             videomodel.VideoStatus    `json:"status"`
	SourceURL          string                    `json:"sourceUrl"`
	SourceSize         int64                     `json:"sourceSize"`
	SourceChecksum     string                    `json:"sourceChecksum,omitempty"`
	ManifestURL        string                    `json:"manifestUrl,omitempty"`
	DurationS          *float64                  `json:"durationS,omitempty"`
	Width              *int                      `json:"width,omitempty"`
	Height             *int                      `json:"height,omitempty"`
	Codec              string                    `json:"codec,omitempty"`
	Bitrate            *int                      `json:"bitrate,omitempty"`
	FPS                *float64                  `json:"fps,omitempty"`
	Thumbnails         *videomodel.ThumbnailSpec `json:"thumbnails,omitempty"`
	UploadSessionID    string                    `json:"uploadSessionId,omitempty"`
	ProcessingAttempts int                       `json:"processingAttempts"`
	LastError          string                    `json:"lastError,omitempty"`
	IsPublic           bool                      `json:"isPublic"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
	ProcessedAt        *time.Time                `json:"processedAt,omitempty"`
	CancelledAt        *time.Time                `json:"cancelledAt,omitempty"`
	DeletedAt          *time.Time                `json:"deletedAt,omitempty"`
	Manifest           json.RawMessage           `json:"manifest,omitempty"`
}

func videoToDTO(v videomodel.Video) videoDTO {
	return videoDTO{
		ID:                 v.ID,
		Title:              v.Title,
		Status:             v.Status,
		SourceURL:          v.SourceURL,
		SourceSize:         v.SourceSize,
		SourceChecksum:     v.SourceChecksum,
		ManifestURL:        v.ManifestURL,
		DurationS:          v.DurationS,
		Width:              v.Width,
		Height:             v.Height,
		Codec:              v.Codec,
		Bitrate:            v.Bitrate,
		FPS:                v.FPS,
		Thumbnails:         v.Thumbnails,
		UploadSessionID:    v.UploadSessionID,
		ProcessingAttempts: v.ProcessingAttempts,
		LastError:          v.LastError,
		IsPublic:           v.IsPublic,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
		ProcessedAt:        v.ProcessedAt,
		CancelledAt:        v.CancelledAt,
		DeletedAt:          v.DeletedAt,
	}
}

// Videos handles GET /api/videos: list non-deleted videos.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	videos, err := h.Controller.ListVideos(r.Context())
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	dtos := make([]videoDTO, 0, len(videos))
	for _, v := range videos {
		dtos = append(dtos, videoToDTO(v))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"videos": dtos})
}

// VideoByID handles GET and DELETE on /api/videos/:id.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	videoID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if videoID == "" {
		WriteRequestError(w, ValidationError("video id is required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, videoID)
	case http.MethodDelete:
		h.deleteVideo(w, r, videoID)
	default:
		WriteMethodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, err := h.Controller.GetVideo(r.Context(), videoID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	dto := videoToDTO(video)
	if video.Ready() {
		if manifest, err := h.fetchManifest(r.Context(), video.ID); err == nil {
			dto.Manifest = manifest
		} else {
			h.Logger.Warn("api: fetch manifest failed", "video_id", video.ID, "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, dto)
}

// fetchManifest reads and returns the raw manifest.json for a ready video,
// per §4.7's "detail + inline manifest when ready".
func (h *Handler) fetchManifest(ctx context.Context, videoID string) (json.RawMessage, error) {
	key := objectstore.ManifestKey(videoID)
	head, err := h.Objects.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	reader, err := h.Objects.RangeGet(ctx, key, 0, head.Size-1)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	if err := h.Controller.DeleteVideo(r.Context(), videoID); err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
