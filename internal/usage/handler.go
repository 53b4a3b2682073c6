// internal/usage/handler.go
package usage

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler is the operator surface for the retry queue.
type Handler struct {
	log      *zap.SugaredLogger
	reporter *Reporter
}

func NewHandler(log *zap.SugaredLogger, reporter *Reporter) *Handler {
	return &Handler{log: log, reporter: reporter}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/usage/retry", h.retry)
	r.Get("/v1/usage/failed", h.failed)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	before := h.reporter.FailedReportsCount()
	h.reporter.RetryFailedReports(r.Context())
	writeJSON(w, map[string]int{
		"attempted":      before,
		"failed_reports": h.reporter.FailedReportsCount(),
	}, http.StatusOK)
}

func (h *Handler) failed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"failed_reports": h.reporter.FailedReportsCount()}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
