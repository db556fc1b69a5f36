package signup

import (
	"context"
	"errors"
	"fmt"

	"signup-api/internal/domain"
	"signup-api/pkg/redis"
)

// ErrUnknownState is returned for OAuth states that were never issued,
// already used, or expired
var ErrUnknownState = errors.New("unknown oauth state")

// FormTracker keeps the per-form submission state in Redis so a form cannot
// run two signups at once.
type FormTracker struct {
	redis *redis.Client
}

func NewFormTracker(redisClient *redis.Client) *FormTracker {
	return &FormTracker{redis: redisClient}
}

// Begin moves formID from idle to submitting. When the form is not idle it
// reports false together with the state that blocked it.
func (t *FormTracker) Begin(ctx context.Context, formID string) (bool, domain.FormState, error) {
	key := t.redis.KeyBuilder.KeySignupForm(formID)

	for attempt := 0; attempt < 2; attempt++ {
		acquired, err := t.redis.SetNX(ctx, key, string(domain.FormSubmitting), redis.TTLFormSubmitting)
		if err != nil {
			return false, domain.FormIdle, fmt.Errorf("failed to lock signup form: %w", err)
		}
		if acquired {
			return true, domain.FormSubmitting, nil
		}

		state, err := t.State(ctx, formID)
		if err != nil {
			return false, domain.FormIdle, err
		}
		// lease expired between SETNX and GET
		if state != domain.FormIdle {
			return false, state, nil
		}
	}

	return false, domain.FormSubmitting, nil
}

// Finish ends a submission: redirected on success, idle otherwise
func (t *FormTracker) Finish(ctx context.Context, formID string, success bool) error {
	key := t.redis.KeyBuilder.KeySignupForm(formID)
	if success {
		return t.redis.Set(ctx, key, string(domain.FormRedirected), redis.TTLFormRedirected)
	}
	return t.redis.Delete(ctx, key)
}

// State returns the current state of formID
func (t *FormTracker) State(ctx context.Context, formID string) (domain.FormState, error) {
	val, err := t.redis.Get(ctx, t.redis.KeyBuilder.KeySignupForm(formID))
	if redis.IsNil(err) {
		return domain.FormIdle, nil
	}
	if err != nil {
		return domain.FormIdle, fmt.Errorf("failed to read signup form: %w", err)
	}
	return domain.FormState(val), nil
}

// BindState records which form an OAuth state belongs to
func (t *FormTracker) BindState(ctx context.Context, state, formID string) error {
	return t.redis.Set(ctx, t.redis.KeyBuilder.KeyOAuthState(state), formID, redis.TTLOAuthState)
}

// ConsumeState returns the form bound to state. A state can be consumed once.
func (t *FormTracker) ConsumeState(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrUnknownState
	}
	formID, err := t.redis.GetDel(ctx, t.redis.KeyBuilder.KeyOAuthState(state))
	if redis.IsNil(err) {
		return "", ErrUnknownState
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return formID, nil
}
