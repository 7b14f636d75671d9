package api

import (
	"net/http"
	"strings"
	"time"

	"videoingest/internal/lifecycle"
	"videoingest/internal/uploadsession"
)

// Uploads handles POST /api/uploads: create video + mint session, per §4.7.
func (h *Handler) Uploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}

	var body struct {
		Title          string  `json:"title"`
		Filename       string  `json:"filename"`
		ContentType    string  `json:"contentType"`
		DeclaredSize   int64   `json:"declaredSize"`
		ChecksumSHA256 *string `json:"checksumSha256,omitempty"`
	}
	if !DecodeAndValidate(w, r, &body) {
		return
	}

	result, err := h.Controller.CreateUpload(r.Context(), lifecycle.CreateUploadRequest{
		Title:          body.Title,
		Filename:       body.Filename,
		ContentType:    body.ContentType,
		DeclaredSize:   body.DeclaredSize,
		ChecksumSHA256: body.ChecksumSHA256,
	})
	if err != nil {
		WriteRequestError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, newSessionResponse(result.VideoID, result.Session))
}

// newSessionResponse shapes POST /uploads's two response variants per
// §4.7: single-PUT sessions omit the multipart-only fields entirely.
func newSessionResponse(videoID string, s uploadsession.NewSessionResult) map[string]interface{} {
	expiresAt := s.ExpiresAt.Format(time.RFC3339)
	if !s.Multipart {
		return map[string]interface{}{
			"type":      "single",
			"videoId":   videoID,
			"uploadId":  s.SessionID,
			"uploadUrl": s.UploadURL,
			"expiresAt": expiresAt,
		}
	}
	return map[string]interface{}{
		"type":              "multipart",
		"videoId":           videoID,
		"uploadId":          s.SessionID,
		"multipartUploadId": s.MultipartUploadID,
		"partUrls":          s.PartURLs,
		"partSize":          s.PartSize,
		"numParts":          s.NumParts,
		"expiresAt":         expiresAt,
	}
}

// uploadIDAndAction splits "/api/uploads/{id}/{action}" into its parts.
func uploadIDAndAction(path string) (id, action string) {
	trimmed := strings.TrimPrefix(path, "/api/uploads/")
	trimmed = strings.Trim(trimmed, "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// UploadByID handles the per-upload action routes under /api/uploads/:id/*.
func (h *Handler) UploadByID(w http.ResponseWriter, r *http.Request) {
	videoID, action := uploadIDAndAction(r.URL.Path)
	if videoID == "" {
		WriteRequestError(w, ValidationError("upload id is required"))
		return
	}

	switch action {
	case "refresh-urls":
		h.refreshURLs(w, r, videoID)
	case "part-checksums":
		h.registerPartChecksums(w, r, videoID)
	case "complete":
		h.completeUpload(w, r, videoID)
	case "abort":
		h.abortUpload(w, r, videoID)
	case "status":
		h.uploadStatus(w, r, videoID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) refreshURLs(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	result, err := h.Controller.RefreshURLs(r.Context(), videoID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"partUrls":  result.PartURLs,
		"partSize":  result.PartSize,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) registerPartChecksums(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPatch {
		WriteMethodNotAllowed(w, r, http.MethodPatch)
		return
	}
	var body struct {
		Parts []struct {
			PartNumber int    `json:"partNumber"`
			Checksum   string `json:"checksum"`
			Size       int64  `json:"size"`
		} `json:"parts"`
	}
	if !DecodeAndValidate(w, r, &body) {
		return
	}

	accepted := 0
	for _, p := range body.Parts {
		if err := h.Controller.RegisterPartChecksum(r.Context(), videoID, p.PartNumber, p.Checksum, p.Size); err != nil {
			WriteRequestError(w, err)
			return
		}
		accepted++
	}
	WriteJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}

func (h *Handler) completeUpload(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	video, err := h.Controller.Complete(r.Context(), videoID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"videoId": video.ID,
		"status":  string(video.Status),
	})
}

func (h *Handler) abortUpload(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := h.Controller.Abort(r.Context(), videoID); err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) uploadStatus(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	video, err := h.Controller.Status(r.Context(), videoID)
	if err != nil {
		WriteRequestError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"videoId": video.ID,
		"status":  string(video.Status),
		"title":   video.Title,
	})
}
