package lifecycle

import (
	"context"
	"log/slog"

	"videoingest/internal/eventbus"
)

// Reconciler drains the event bus's video:status topic and applies each
// event to the metadata store via Controller.HandleWorkerEvent. This is
// the controller half of the §9.5 "worker-publishes/controller-
// reconciles" default: the worker (out of process) publishes ready/failed
// outcomes; this loop is what turns them into a locked state transition.
type Reconciler struct {
	controller *Controller
	bus        eventbus.Bus
	logger     *slog.Logger
}

// NewReconciler constructs a Reconciler over bus, delegating to controller.
func NewReconciler(controller *Controller, bus eventbus.Bus, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{controller: controller, bus: bus, logger: logger}
}

// Run subscribes to the status topic and processes events until ctx is
// cancelled or the subscription closes.
func (r *Reconciler) Run(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, eventbus.TopicVideoStatus)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := r.controller.HandleWorkerEvent(ctx, event); err != nil {
				r.logger.Warn("lifecycle: reconcile event failed", "video_id", event.VideoID, "status", event.Status, "error", err)
			}
		}
	}
}
