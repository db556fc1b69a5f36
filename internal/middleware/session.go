package middleware

import (
	"context"
	"errors"
	"net/http"

	"signup-api/internal/domain"
	"signup-api/internal/service"
	"signup-api/internal/service/session"
	"signup-api/pkg/logger"
)

// Session resolves the caller's session cookie and stores the session in the
// request context. Requests without a valid session pass through untouched.
func Session(sessions service.SessionService, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.TokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.Current(r.Context(), token)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.WithError(err).Warn("Session lookup failed")
				}
				next.ServeHTTP(w, r)
				return
			}

			logger.WithField("uid", sess.UID).Debug("Session resolved")
			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session resolved by Session, if any
func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	sess, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return sess, ok && sess != nil
}
