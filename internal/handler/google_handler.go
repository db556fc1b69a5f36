package handler

import (
	stderrors "errors"
	"net/http"
	"net/url"

	"signup-api/internal/container"
	"signup-api/internal/domain"
	"signup-api/internal/middleware"
	"signup-api/internal/service/signup"
	"signup-api/pkg/errors"
)

// GoogleHandler drives the Google signup redirect flow
type GoogleHandler struct {
	container *container.Container
}

// NewGoogleHandler creates a new Google signup handler
func NewGoogleHandler(container *container.Container) *GoogleHandler {
	return &GoogleHandler{
		container: container,
	}
}

// Login handles GET /api/auth/google/login
func (h *GoogleHandler) Login(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, h.frontendURL(domain.HomeRoute), http.StatusTemporaryRedirect)
		return
	}

	authURL, err := h.container.GetSignupService().BeginGoogleSignUp(r.Context(), r.URL.Query().Get("form_id"))
	if stderrors.Is(err, signup.ErrFormCompleted) {
		http.Redirect(w, r, h.frontendURL(domain.HomeRoute), http.StatusTemporaryRedirect)
		return
	}
	if err != nil {
		h.redirectWithError(w, r, errors.AsAppError(err))
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback handles GET /api/auth/google/callback
func (h *GoogleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.container.GetSignupService().CompleteGoogleSignUp(r.Context(), domain.GoogleCallback{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	})
	if err != nil {
		h.redirectWithError(w, r, errors.AsAppError(err))
		return
	}

	if result.Token != "" {
		h.container.GetSessionService().SetCookie(w, result.Token)
	}
	http.Redirect(w, r, h.frontendURL(result.Redirect), http.StatusTemporaryRedirect)
}

// redirectWithError sends the browser back to the signup page with the
// error code and message in the query string
func (h *GoogleHandler) redirectWithError(w http.ResponseWriter, r *http.Request, appErr *errors.AppError) {
	logger := h.container.GetLogger()
	entry := logger.WithFields(map[string]interface{}{
		"code":   appErr.Code,
		"status": appErr.StatusCode,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.WithError(appErr).Error("Google signup failed")
	} else {
		entry.Info("Google signup rejected")
	}

	params := url.Values{}
	params.Set("error", appErr.Code)
	params.Set("message", appErr.Message)
	http.Redirect(w, r, h.frontendURL("/signup?"+params.Encode()), http.StatusTemporaryRedirect)
}

func (h *GoogleHandler) frontendURL(path string) string {
	return h.container.GetConfig().FrontendURL + path
}
