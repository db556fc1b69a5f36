package handler

import (
	"net/http"

	"github.com/go-chi/render"

	"signup-api/internal/container"
	"signup-api/internal/domain"
	"signup-api/internal/middleware"
	"signup-api/pkg/errors"
)

// FormIDHeader lets clients send the form instance ID outside the body
const FormIDHeader = "X-Form-ID"

// SignupHandler handles the email/password signup form
type SignupHandler struct {
	container *container.Container
}

// NewSignupHandler creates a new signup handler
func NewSignupHandler(container *container.Container) *SignupHandler {
	return &SignupHandler{
		container: container,
	}
}

// SignUp handles POST /api/signup
func (h *SignupHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		logger.WithField("uid", sess.UID).Debug("Already signed in, redirecting")
		writeJSON(w, r, http.StatusOK, domain.SignupResponse{
			Success:  true,
			Redirect: domain.HomeRoute,
			User:     userFromSession(sess),
		})
		return
	}

	var req domain.EmailSignupRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeErrorResponse(w, r, logger, errors.NewValidationError("Invalid request body", nil))
		return
	}
	if req.FormID == "" {
		req.FormID = r.Header.Get(FormIDHeader)
	}

	result, err := h.container.GetSignupService().SignUpWithEmail(r.Context(), req)
	if err != nil {
		writeErrorResponse(w, r, logger, errors.AsAppError(err))
		return
	}

	status := http.StatusOK
	if result.Token != "" {
		h.container.GetSessionService().SetCookie(w, result.Token)
	}
	if result.UID != "" {
		status = http.StatusCreated
	}

	writeJSON(w, r, status, domain.SignupResponse{
		Success:  true,
		Redirect: result.Redirect,
		User:     userFromResult(result),
	})
}

// FormStatus handles GET /api/signup/form. Clients poll it to restore the
// submit button after a reload.
func (h *SignupHandler) FormStatus(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	formID := r.URL.Query().Get("form_id")
	if formID == "" {
		formID = r.Header.Get(FormIDHeader)
	}
	if formID == "" {
		writeErrorResponse(w, r, logger, errors.NewValidationError("form_id is required", nil))
		return
	}

	state, err := h.container.GetSignupService().FormState(r.Context(), formID)
	if err != nil {
		writeErrorResponse(w, r, logger, errors.NewInternalError("Failed to read form state", err))
		return
	}

	writeJSON(w, r, http.StatusOK, domain.FormStatusResponse{FormID: formID, State: state})
}

func userFromResult(result *domain.SignupResult) *domain.UserResponse {
	if result.UID == "" || result.Profile == nil {
		return nil
	}
	return &domain.UserResponse{
		UID:   result.UID,
		Email: result.Profile.Email,
		Name:  result.Profile.Name,
		Role:  result.Profile.Role,
	}
}

func userFromSession(sess *domain.Session) *domain.UserResponse {
	return &domain.UserResponse{
		UID:   sess.UID,
		Email: sess.Email,
		Name:  sess.Name,
		Role:  domain.RoleUser,
	}
}
