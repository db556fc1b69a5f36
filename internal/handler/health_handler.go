package handler

import (
	"context"
	"net/http"
	"time"

	"signup-api/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "signup-api",
		Checks:    map[string]string{},
	}

	if redisClient := h.container.GetRedisClient(); redisClient != nil {
		response.Checks["redis"] = checkStatus(redisClient.Health(ctx))
	}
	if db := h.container.DB; db != nil && db.Pool != nil {
		response.Checks["database"] = checkStatus(db.Health(ctx))
	}

	status := http.StatusOK
	for name, check := range response.Checks {
		if check != "ok" {
			logger.WithField("check", name).Warn("Health check degraded")
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, r, status, response)
}

func checkStatus(err error) string {
	if err != nil {
		return "unavailable"
	}
	return "ok"
}
