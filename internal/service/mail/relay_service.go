package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"signup-api/internal/domain"
	"signup-api/pkg/logger"
)

// WelcomePath is the mail API route the relay forwards to
const WelcomePath = "/api/send-welcome-email"

// FailedMessage is reported when the mail API answers with a non-2xx status
const FailedMessage = "Failed to send welcome email"

// RelayError is a failed forward. Message is safe to return to callers.
type RelayError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// Relay forwards welcome-email requests to the external mail API. The base
// URL is resolved on every call.
type Relay struct {
	baseURL    func() string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewRelay creates a new mail relay
func NewRelay(baseURL func() string, httpClient *http.Client, logger *logger.Logger) *Relay {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Relay{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SendWelcome forwards one welcome email. It is attempted exactly once. An
// unset base URL is not checked here; the request then fails in transport.
func (r *Relay) SendWelcome(ctx context.Context, email, name string) error {
	base := strings.TrimRight(r.baseURL(), "/")

	payload, err := json.Marshal(domain.WelcomeEmailRequest{Email: email, Name: name})
	if err != nil {
		return &RelayError{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+WelcomePath, bytes.NewReader(payload))
	if err != nil {
		return &RelayError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.WithError(err).Error("Mail API request failed")
		return &RelayError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.WithField("status_code", resp.StatusCode).Warn("Mail API rejected welcome email")
		return &RelayError{Message: FailedMessage, StatusCode: resp.StatusCode}
	}

	r.logger.Debug("Welcome email forwarded")
	return nil
}
