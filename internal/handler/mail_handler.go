package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/render"

	"signup-api/internal/container"
	"signup-api/internal/domain"
	"signup-api/internal/service/mail"
)

// MailHandler relays welcome-email requests to the mail API
type MailHandler struct {
	container *container.Container
}

// NewMailHandler creates a new mail relay handler
func NewMailHandler(container *container.Container) *MailHandler {
	return &MailHandler{
		container: container,
	}
}

// SendWelcomeEmail handles POST /api/send-welcome-email
func (h *MailHandler) SendWelcomeEmail(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	var req domain.WelcomeEmailRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		logger.WithError(err).Warn("Invalid welcome email request")
		writeJSON(w, r, http.StatusInternalServerError, domain.RelayErrorResponse{Error: err.Error()})
		return
	}

	if err := h.container.GetMailRelay().SendWelcome(r.Context(), req.Email, req.Name); err != nil {
		message := err.Error()
		var relayErr *mail.RelayError
		if stderrors.As(err, &relayErr) {
			message = relayErr.Message
		}
		writeJSON(w, r, http.StatusInternalServerError, domain.RelayErrorResponse{Error: message})
		return
	}

	writeJSON(w, r, http.StatusOK, domain.WelcomeEmailResponse{Success: true})
}
