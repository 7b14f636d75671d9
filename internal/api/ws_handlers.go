package api

import "net/http"

// Subscribe handles GET /api/ws?videoId=... and upgrades the connection to
// a websocket delivering that video's status events, per §4.6's fan-out
// service and §4.7's WS contract.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w, r, http.MethodGet)
		return
	}
	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		WriteRequestError(w, ValidationError("videoId query parameter is required"))
		return
	}
	h.Fanout.ServeWS(w, r, videoID)
}
