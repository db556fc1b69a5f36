package domain

import "time"

// Role is the application role stored on a profile record
type Role string

const (
	RoleUser Role = "user"
)

// ProfilesCollection is the document collection holding profile records
const ProfilesCollection = "users"

// Profile is the application-level user document. It is keyed by the
// credential UID issued by the identity provider and never by anything else.
type Profile struct {
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      Role      `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Credential is the identity provider's record of a signed-up user, as
// returned by a successful sign-up or federated sign-in.
type Credential struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
	IDToken      string `json:"-"`
	RefreshToken string `json:"-"`
	IsNewUser    bool   `json:"is_new_user"`
}

// UserResponse is the public view of a signed-up user
type UserResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}
