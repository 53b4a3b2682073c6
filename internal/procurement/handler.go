// internal/procurement/handler.go
package procurement

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler receives the marketplace's push-style event webhook. The envelope
// is the Pub/Sub push format: {"message": {"data": base64(json)}}.
type Handler struct {
	log *zap.SugaredLogger
	svc *Service
}

func NewHandler(log *zap.SugaredLogger, svc *Service) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/events", h.handleEvent)
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var m PubSubMessage
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	var ev Event
	if err := json.Unmarshal(m.Message.Data, &ev); err != nil {
		h.log.Warnw("undecodable event payload", "messageId", m.Message.ID, "err", err)
		http.Error(w, "bad event payload", http.StatusBadRequest)
		return
	}
	if ev.EventType == "" {
		http.Error(w, "eventType missing", http.StatusBadRequest)
		return
	}

	// Always 200 past this point: a non-2xx would make the bus redeliver
	// forever, including events this consumer legitimately cannot act on.
	if err := h.svc.HandleEvent(r.Context(), ev); err != nil {
		h.log.Errorw("event processing failed, acknowledging anyway", "eventId", ev.EventID, "type", ev.EventType, "err", err)
	}
	w.WriteHeader(http.StatusOK)
}
