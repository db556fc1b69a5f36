package domain

// HomeRoute is where a browser is sent once it is authenticated
const HomeRoute = "/"

// MinPasswordLength mirrors the form's minLength on the password field
const MinPasswordLength = 6

// FormState tracks one signup form instance: idle -> submitting -> redirected,
// or back to idle when an attempt fails.
type FormState string

const (
	FormIdle       FormState = "idle"
	FormSubmitting FormState = "submitting"
	FormRedirected FormState = "redirected"
)

// EmailSignupRequest is the email/password signup form
type EmailSignupRequest struct {
	FormID   string `json:"form_id"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// GoogleCallback carries the query parameters of the OAuth redirect
type GoogleCallback struct {
	State string
	Code  string
	Error string
}

// SignupResult is returned once a signup completed and the browser may be
// redirected
type SignupResult struct {
	FormID   string
	UID      string
	Profile  *Profile
	Session  *Session
	Token    string
	Redirect string
}

// SignupResponse is the JSON body of a successful signup
type SignupResponse struct {
	Success  bool          `json:"success"`
	Redirect string        `json:"redirect"`
	User     *UserResponse `json:"user,omitempty"`
}

// FormStatusResponse reports where a signup form is in its lifecycle
type FormStatusResponse struct {
	FormID string    `json:"form_id"`
	State  FormState `json:"state"`
}
