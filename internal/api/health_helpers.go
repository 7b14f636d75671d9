package api

import (
	"context"
	"net/http"
)

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 2)
	if p, ok := h.Metadata.(pinger); ok {
		components = append(components, recordComponent("metadata_store", p.Ping(ctx)))
	}
	if p, ok := h.Objects.(pinger); ok {
		components = append(components, recordComponent("object_store", p.Ping(ctx)))
	}

	return components, overallStatus, statusCode
}

// Health reports liveness unconditionally; the process is alive if it can
// answer at all.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness: every pingable dependency must be reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	components, status, code := h.componentHealth(r.Context())
	WriteJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}
