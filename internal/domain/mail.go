package domain

// WelcomeEmailRequest is both the relay's request body and the payload
// forwarded to the mail API
type WelcomeEmailRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// WelcomeEmailResponse is the relay's success body
type WelcomeEmailResponse struct {
	Success bool `json:"success"`
}

// RelayErrorResponse is the relay's failure body
type RelayErrorResponse struct {
	Error string `json:"error"`
}
