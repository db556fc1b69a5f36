package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"signup-api/internal/domain"
	"signup-api/pkg/logger"
	"signup-api/pkg/redis"
)

var ErrNoSession = errors.New("no active session")

// Service owns authenticated sessions. Sessions live in Redis; browsers hold
// a signed token naming the session. Every state change is published on the
// signup form's channel so an open page can follow it.
type Service struct {
	redis        *redis.Client
	secret       []byte
	ttl          time.Duration
	secureCookie bool
	logger       *logger.Logger
	now          func() time.Time
}

// Config holds the session settings
type Config struct {
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

// NewService creates a new session service
func NewService(redisClient *redis.Client, cfg Config, logger *logger.Logger) *Service {
	return &Service{
		redis:        redisClient,
		secret:       []byte(cfg.Secret),
		ttl:          cfg.TTL,
		secureCookie: cfg.SecureCookie,
		logger:       logger,
		now:          time.Now,
	}
}

// Start creates a session for a freshly authenticated user and announces it
// to subscribers of formID. It returns the session and its signed token.
func (s *Service) Start(ctx context.Context, cred *domain.Credential, profile *domain.Profile, formID string) (*domain.Session, string, error) {
	now := s.now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UID:       cred.UID,
		Email:     cred.Email,
		Provider:  cred.ProviderID,
		FormID:    formID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if profile != nil {
		sess.Name = profile.Name
		if sess.Email == "" {
			sess.Email = profile.Email
		}
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode session: %w", err)
	}

	if err := s.redis.Set(ctx, s.redis.KeyBuilder.KeySession(sess.ID), payload, s.ttl); err != nil {
		return nil, "", fmt.Errorf("failed to store session: %w", err)
	}

	token, err := s.signToken(sess.ID, sess.UID, sess.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	s.publish(ctx, formID, domain.SessionEvent{
		Type:     domain.SessionAuthenticated,
		UID:      sess.UID,
		Redirect: domain.HomeRoute,
	})

	s.logger.WithFields(map[string]interface{}{
		"session_id": sess.ID,
		"uid":        sess.UID,
		"provider":   sess.Provider,
	}).Info("Session started")

	return sess, token, nil
}

// Current resolves a token to its live session. ErrNoSession covers bad,
// expired and revoked tokens alike.
func (s *Service) Current(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	sessionID, err := s.parseToken(token)
	if err != nil {
		return nil, ErrNoSession
	}

	raw, err := s.redis.Get(ctx, s.redis.KeyBuilder.KeySession(sessionID))
	if redis.IsNil(err) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// End revokes the session behind token. Ending an unknown session is not an
// error.
func (s *Service) End(ctx context.Context, token string) error {
	sess, err := s.Current(ctx, token)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.redis.Delete(ctx, s.redis.KeyBuilder.KeySession(sess.ID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.publish(ctx, sess.FormID, domain.SessionEvent{Type: domain.SessionSignedOut, UID: sess.UID})
	s.logger.WithField("session_id", sess.ID).Info("Session ended")
	return nil
}

// Subscribe delivers session events for one signup form to fn until the
// returned unsubscribe func is called or ctx ends. fn runs on a single
// goroutine, in publish order. Unsubscribe is idempotent and returns once
// fn will no longer be called, so it must not be called from inside fn.
func (s *Service) Subscribe(ctx context.Context, formID string, fn func(domain.SessionEvent)) (func(), error) {
	if formID == "" {
		return nil, errors.New("form id is required")
	}

	pubsub, err := s.redis.Subscribe(ctx, s.redis.KeyBuilder.KeySessionEvents(formID))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event domain.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.WithError(err).Warn("Dropping malformed session event")
					continue
				}
				fn(event)
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}
	return unsubscribe, nil
}

func (s *Service) publish(ctx context.Context, formID string, event domain.SessionEvent) {
	if formID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.redis.Publish(ctx, s.redis.KeyBuilder.KeySessionEvents(formID), payload); err != nil {
		s.logger.WithError(err).WithField("form_id", formID).Warn("Failed to publish session event")
	}
}
