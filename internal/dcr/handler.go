// internal/dcr/handler.go
package dcr

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"billgate/pkg/metrics"
)

type registerRequest struct {
	SoftwareStatement string `json:"software_statement"`
}

type registerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type Handler struct {
	log *zap.SugaredLogger
	svc *Service
}

func NewHandler(log *zap.SugaredLogger, svc *Service) *Handler {
	return &Handler{log: log, svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/v1/register", h.register)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SoftwareStatement == "" {
		writeJSON(w, registerError{Error: "invalid_software_statement", ErrorDescription: "software_statement missing"}, http.StatusBadRequest)
		return
	}

	creds, derr := h.svc.Register(r.Context(), req.SoftwareStatement)
	if derr != nil {
		metrics.RegistrationErrors.WithLabelValues(derr.Code()).Inc()
		if derr.Kind == KindServerError {
			h.log.Errorw("registration failed", "err", derr)
		} else {
			h.log.Infow("registration rejected", "code", derr.Code(), "detail", derr.Detail)
		}
		writeJSON(w, registerError{Error: derr.Code(), ErrorDescription: derr.Detail}, derr.HTTPStatus())
		return
	}
	writeJSON(w, creds, http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
