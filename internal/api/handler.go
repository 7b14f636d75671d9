// Package api hosts the HTTP handlers that front the video ingest
// control plane (§4.7). Handlers coordinate request validation and
// response shaping while delegating all state changes to
// lifecycle.Controller and all live status delivery to fanout.Service;
// the package holds no domain logic of its own.
//
// Handler implementations assume upstream middleware from internal/server
// has already enforced rate limiting, metrics, auditing, and request
// logging. New routes should preserve that contract by avoiding duplicate
// concerns and leaning on the middleware guarantees established there.
package api

import (
	"context"
	"log/slog"

	"videoingest/internal/fanout"
	"videoingest/internal/lifecycle"
	"videoingest/internal/objectstore"
	"videoingest/internal/videostore"
)

// Handler wires the lifecycle controller and fan-out service into the
// HTTP surface described in §4.7. Metadata and Objects are held alongside
// Controller for health checks (§ ambient stack, health probes), and
// Objects also serves the manifest that GET /videos/:id inlines; all state
// changes go through Controller/Fanout.
type Handler struct {
	Controller *lifecycle.Controller
	Fanout     *fanout.Service
	Metadata   videostore.Store
	Objects    objectstore.Store
	Logger     *slog.Logger
}

// New constructs a Handler. logger defaults to slog.Default() when nil.
func New(controller *lifecycle.Controller, fan *fanout.Service, meta videostore.Store, objects objectstore.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Controller: controller, Fanout: fan, Metadata: meta, Objects: objects, Logger: logger}
}

type pinger interface {
	Ping(ctx context.Context) error
}
