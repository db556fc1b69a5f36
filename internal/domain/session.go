package domain

import "time"

// Session is the server-side record of an authenticated browser
type Session struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Provider  string    `json:"provider"`
	FormID    string    `json:"form_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionEventType describes a session state change
type SessionEventType string

const (
	SessionAuthenticated SessionEventType = "authenticated"
	SessionSignedOut     SessionEventType = "signed_out"
)

// SessionEvent is delivered to session-change subscribers
type SessionEvent struct {
	Type     SessionEventType `json:"type"`
	UID      string           `json:"uid,omitempty"`
	Redirect string           `json:"redirect,omitempty"`
}

// SessionStatusResponse answers the on-load session check
type SessionStatusResponse struct {
	Authenticated bool          `json:"authenticated"`
	Redirect      string        `json:"redirect,omitempty"`
	User          *UserResponse `json:"user,omitempty"`
}
