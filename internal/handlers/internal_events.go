package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/neonnoe/storefront-api/internal/platform/events"
	"github.com/neonnoe/storefront-api/internal/platform/httpx"
	"github.com/neonnoe/storefront-api/internal/services"
)

const maxPushBodySize = 1 << 20

// InternalEventHandlers receives Pub/Sub push deliveries for order lifecycle events.
type InternalEventHandlers struct {
	notifications services.OrderNotificationService
	logger        *zap.Logger
}

// NewInternalEventHandlers constructs the internal event push endpoint handlers.
func NewInternalEventHandlers(notifications services.OrderNotificationService, logger *zap.Logger) *InternalEventHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InternalEventHandlers{
		notifications: notifications,
		logger:        logger,
	}
}

// HandlePush handles POST /internal/events. Non-2xx responses cause Pub/Sub to
// redeliver, so malformed and unknown messages are acknowledged rather than
// bounced forever.
func (h *InternalEventHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}

	event, messageID, err := events.DecodePush(r.Body, maxPushBodySize)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEvent) {
			h.logger.Warn("acknowledging unhandled event",
				zap.String("messageId", messageID),
				zap.Error(err))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Warn("rejecting malformed push delivery",
			zap.String("messageId", messageID),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_push", "malformed push delivery", http.StatusBadRequest))
		return
	}

	switch event.Name {
	case events.EventOrderPlaced:
		err = h.notifications.HandleOrderPlaced(ctx, event.Data.ID)
	case events.EventShipmentCreated:
		err = h.notifications.HandleShipmentCreated(ctx, event.Data.ID, event.Data.NoNotification)
	}
	if err != nil {
		h.logger.Error("event handling failed",
			zap.String("event", event.Name),
			zap.String("id", event.Data.ID),
			zap.String("messageId", messageID),
			zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("event_failed", "event handling failed", http.StatusInternalServerError))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
