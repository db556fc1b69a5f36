package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signup-api/internal/container"
	"signup-api/internal/domain"
	"signup-api/internal/middleware"
	"signup-api/internal/service/session"
	"signup-api/pkg/errors"
)

const watchWriteTimeout = 10 * time.Second

// SessionHandler exposes the caller's session and its changes
type SessionHandler struct {
	container *container.Container
	upgrader  websocket.Upgrader
}

// NewSessionHandler creates a new session handler. Websocket upgrades are
// accepted from the configured CORS origins and from non-browser clients.
func NewSessionHandler(container *container.Container, cors *middleware.CORSConfig) *SessionHandler {
	return &SessionHandler{
		container: container,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || cors.OriginAllowed(origin)
			},
		},
	}
}

// Status handles GET /api/auth/session
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusOK, domain.SessionStatusResponse{Authenticated: false})
		return
	}

	writeJSON(w, r, http.StatusOK, domain.SessionStatusResponse{
		Authenticated: true,
		Redirect:      domain.HomeRoute,
		User:          userFromSession(sess),
	})
}

// Logout handles POST /api/auth/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessions := h.container.GetSessionService()

	if err := sessions.End(r.Context(), session.TokenFromRequest(r)); err != nil {
		writeErrorResponse(w, r, h.container.GetLogger(), errors.NewInternalError("Failed to sign out", err))
		return
	}

	sessions.ClearCookie(w)
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// Watch handles GET /api/auth/watch. It streams session events for one
// signup form over a websocket until the client goes away.
func (h *SessionHandler) Watch(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	formID := r.URL.Query().Get("form_id")
	if formID == "" {
		writeErrorResponse(w, r, logger, errors.NewValidationError("form_id is required", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(event domain.SessionEvent) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		return conn.WriteJSON(event)
	}

	if sess, ok := middleware.SessionFromContext(r.Context()); ok {
		_ = send(domain.SessionEvent{Type: domain.SessionAuthenticated, UID: sess.UID, Redirect: domain.HomeRoute})
		closeWebsocket(conn, &writeMu, websocket.CloseNormalClosure, "")
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	unsubscribe, err := h.container.GetSessionService().Subscribe(ctx, formID, func(event domain.SessionEvent) {
		if err := send(event); err != nil {
			cancel()
		}
	})
	if err != nil {
		logger.WithError(err).WithField("form_id", formID).Error("Failed to subscribe to session events")
		closeWebsocket(conn, &writeMu, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer unsubscribe()

	// Reads only detect the client going away; clients send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	<-ctx.Done()
	logger.WithField("form_id", formID).Debug("Session watch closed")
}

func closeWebsocket(conn *websocket.Conn, mu *sync.Mutex, code int, text string) {
	mu.Lock()
	defer mu.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
