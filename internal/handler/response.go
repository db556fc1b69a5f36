package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"signup-api/internal/middleware"
	"signup-api/pkg/errors"
	"signup-api/pkg/logger"
)

// writeJSON writes v as a JSON body with the given status
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// writeErrorResponse writes an AppError in the standard error envelope
func writeErrorResponse(w http.ResponseWriter, r *http.Request, log *logger.Logger, appErr *errors.AppError) {
	entry := log.WithFields(map[string]interface{}{
		"status": appErr.StatusCode,
		"type":   string(appErr.Type),
		"code":   appErr.Code,
		"path":   r.URL.Path,
	})
	if appErr.StatusCode >= http.StatusInternalServerError {
		entry.WithError(appErr).Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Code = appErr.Code
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.RequestID = middleware.RequestIDFromContext(r.Context())
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	writeJSON(w, r, appErr.StatusCode, response)
}
