package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"videoingest/internal/api"
	"videoingest/internal/eventbus"
	"videoingest/internal/fanout"
	"videoingest/internal/lifecycle"
	objmem "videoingest/internal/objectstore/memstore"
	"videoingest/internal/uploadsession"
	"videoingest/internal/videomodel"
	"videoingest/internal/videostore/memstore"
)

func newHandler(t *testing.T) (*api.Handler, *objmem.Store) {
	t.Helper()
	objects := objmem.New("")
	meta := memstore.New()
	bus := eventbus.NewMemory()
	sessions := uploadsession.New(objects, meta, uploadsession.WithMultipartThreshold(1<<20))
	ctrl := lifecycle.New(meta, objects, sessions, bus)
	fan := fanout.New(bus, nil)
	return api.New(ctrl, fan, meta, objects, nil), objects
}

func TestUploadsCreateReturnsSingleSession(t *testing.T) {
	h, _ := newHandler(t)

	body, _ := json.Marshal(map[string]interface{}{
		"title":        "clip",
		"filename":     "clip.mp4",
		"contentType":  "video/mp4",
		"declaredSize": 1024,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Uploads(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["type"] != "single" {
		t.Fatalf("got type %v, want single", resp["type"])
	}
	if resp["uploadUrl"] == "" {
		t.Fatalf("expected a non-empty upload url")
	}
}

func TestUploadCompleteLifecycleAndStatus(t *testing.T) {
	h, objects := newHandler(t)

	createBody, _ := json.Marshal(map[string]interface{}{
		"filename":     "clip.mp4",
		"contentType":  "video/mp4",
		"declaredSize": 1024,
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	h.Uploads(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("create upload: status %d, body %s", createRec.Code, createRec.Body.String())
	}
	var created map[string]interface{}
	if err := json.Unmarshal(createRec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	videoID := created["videoId"].(string)

	video, err := h.Controller.GetVideo(createReq.Context(), videoID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 1024))

	completeReq := httptest.NewRequest(http.MethodPost, "/api/uploads/"+videoID+"/complete", nil)
	completeRec := httptest.NewRecorder()
	h.UploadByID(completeRec, completeReq)
	if completeRec.Code != http.StatusOK {
		t.Fatalf("complete: status %d, body %s", completeRec.Code, completeRec.Body.String())
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/api/uploads/"+videoID+"/status", nil)
	statusRec := httptest.NewRecorder()
	h.UploadByID(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status: status %d, body %s", statusRec.Code, statusRec.Body.String())
	}
	var statusResp map[string]interface{}
	if err := json.Unmarshal(statusRec.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if statusResp["status"] != string(videomodel.StatusProcessing) {
		t.Fatalf("got status %v, want processing", statusResp["status"])
	}
}

func TestVideosListExcludesDeleted(t *testing.T) {
	h, objects := newHandler(t)

	createBody, _ := json.Marshal(map[string]interface{}{
		"filename":     "clip.mp4",
		"contentType":  "video/mp4",
		"declaredSize": 1024,
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/uploads", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	h.Uploads(createRec, createReq)
	var created map[string]interface{}
	json.Unmarshal(createRec.Body.Bytes(), &created)
	videoID := created["videoId"].(string)

	video, _ := h.Controller.GetVideo(createReq.Context(), videoID)
	objects.PutObject(video.SourceURL, "video/mp4", make([]byte, 1024))

	delReq := httptest.NewRequest(http.MethodDelete, "/api/videos/"+videoID, nil)
	delRec := httptest.NewRecorder()
	h.VideoByID(delRec, delReq)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", delRec.Code, delRec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	listRec := httptest.NewRecorder()
	h.Videos(listRec, listReq)
	var listResp struct {
		Videos []map[string]interface{} `json:"videos"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	for _, v := range listResp.Videos {
		if v["id"] == videoID {
			t.Fatalf("deleted video %s still present in listing", videoID)
		}
	}
}

func TestSubscribeRequiresVideoID(t *testing.T) {
	h, _ := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	rec := httptest.NewRecorder()
	h.Subscribe(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}
