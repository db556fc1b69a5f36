package service

import (
	"context"
	"net/http"

	"signup-api/internal/domain"
)

// IdentityProvider defines the managed identity service operations
type IdentityProvider interface {
	// CreateCredential registers an email/password account
	CreateCredential(ctx context.Context, email, password string) (*domain.Credential, error)

	// SignInWithIdP signs in with a federated provider's ID token
	SignInWithIdP(ctx context.Context, providerID, idToken string) (*domain.Credential, error)
}

// GoogleAuthenticator runs the Google authorization-code flow
type GoogleAuthenticator interface {
	// AuthCodeURL returns the consent page URL for state
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for a validated ID token
	Exchange(ctx context.Context, code string) (string, error)
}

// WelcomeSender sends the welcome email for a new account
type WelcomeSender interface {
	SendWelcome(ctx context.Context, email, name string) error
}

// SessionService defines session lifecycle operations
type SessionService interface {
	// Start creates a session and notifies subscribers of formID
	Start(ctx context.Context, cred *domain.Credential, profile *domain.Profile, formID string) (*domain.Session, string, error)

	// Current resolves a token to its live session
	Current(ctx context.Context, token string) (*domain.Session, error)

	// End revokes a session
	End(ctx context.Context, token string) error

	// Subscribe follows session events for a form until unsubscribed
	Subscribe(ctx context.Context, formID string, fn func(domain.SessionEvent)) (func(), error)

	SetCookie(w http.ResponseWriter, token string)
	ClearCookie(w http.ResponseWriter)
}

// SignupService defines the signup flows
type SignupService interface {
	// SignUpWithEmail creates a credential and profile from the signup form
	SignUpWithEmail(ctx context.Context, req domain.EmailSignupRequest) (*domain.SignupResult, error)

	// BeginGoogleSignUp opens a Google signup for formID and returns the consent URL
	BeginGoogleSignUp(ctx context.Context, formID string) (string, error)

	// CompleteGoogleSignUp finishes a Google signup from the OAuth callback
	CompleteGoogleSignUp(ctx context.Context, cb domain.GoogleCallback) (*domain.SignupResult, error)

	// FormState reports where a signup form is in its lifecycle
	FormState(ctx context.Context, formID string) (domain.FormState, error)

	// Shutdown waits for background work started by signups
	Shutdown(ctx context.Context) error
}

// Services aggregates all service interfaces
type Services struct {
	Signup  SignupService
	Session SessionService
	Mail    WelcomeSender
}
