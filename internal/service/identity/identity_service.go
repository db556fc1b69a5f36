package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signup-api/internal/domain"
	"signup-api/pkg/logger"
)

// Client talks to the managed identity provider's REST API (Identity Toolkit
// v1 wire format). It owns no credentials itself: password hashing, token
// issuance and federated sign-in all happen on the provider side.
type Client struct {
	baseURL    string
	apiKey     string
	requestURI string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new identity provider client
func NewClient(baseURL, apiKey, requestURI string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		requestURI: requestURI,
		httpClient: httpClient,
		logger:     logger,
	}
}

type signUpRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInWithIdpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
}

type authResponse struct {
	LocalID          string `json:"localId"`
	Email            string `json:"email"`
	DisplayName      string `json:"displayName"`
	ProviderID       string `json:"providerId"`
	IDToken          string `json:"idToken"`
	RefreshToken     string `json:"refreshToken"`
	IsNewUser        bool   `json:"isNewUser"`
	NeedConfirmation bool   `json:"needConfirmation"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCredential registers a new email/password account
func (c *Client) CreateCredential(ctx context.Context, email, password string) (*domain.Credential, error) {
	var resp authResponse
	err := c.post(ctx, "accounts:signUp", signUpRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.LocalID == "" {
		return nil, &Error{Code: CodeUnknown, Message: "identity provider returned no user id"}
	}

	c.logger.WithField("uid", resp.LocalID).Info("Credential created")

	return &domain.Credential{
		UID:          resp.LocalID,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		ProviderID:   "password",
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		IsNewUser:    true,
	}, nil
}

// SignInWithIdP signs in (creating the account on first use) with an ID
// token issued by a federated provider such as Google
func (c *Client) SignInWithIdP(ctx context.Context, providerID, idToken string) (*domain.Credential, error) {
	postBody := url.Values{
		"id_token":   {idToken},
		"providerId": {providerID},
	}

	var resp authResponse
	err := c.post(ctx, "accounts:signInWithIdp", signInWithIdpRequest{
		PostBody:            postBody.Encode(),
		RequestURI:          c.requestURI,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	// The provider answers 200 but withholds the session when the email is
	// already owned by an account using a different sign-in method.
	if resp.NeedConfirmation {
		c.logger.WithField("provider_id", providerID).Info("Federated sign-in needs confirmation")
		return nil, &Error{
			Code:         CodeAccountExistsWithDifferentCredential,
			ProviderCode: "NEED_CONFIRMATION",
			Message:      "account exists with different credential",
		}
	}

	if resp.LocalID == "" {
		return nil, &Error{Code: CodeUnknown, Message: "identity provider returned no user id"}
	}

	c.logger.WithFields(map[string]interface{}{
		"uid":         resp.LocalID,
		"provider_id": providerID,
		"is_new_user": resp.IsNewUser,
	}).Info("Federated sign-in succeeded")

	return &domain.Credential{
		UID:          resp.LocalID,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		ProviderID:   providerID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		IsNewUser:    resp.IsNewUser,
	}, nil
}

// post sends one JSON request to the provider. Failures come back as *Error
func (c *Client) post(ctx context.Context, method string, body interface{}, out interface{}) error {
	endpoint := fmt.Sprintf("%s/v1/%s?key=%s", c.baseURL, method, url.QueryEscape(c.apiKey))

	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Code: CodeUnknown, Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &Error{Code: CodeUnknown, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("method", method).Error("Identity provider request failed")
		return &Error{Code: CodeUnknown, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: CodeUnknown, Message: "failed to read identity provider response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		providerErr := parseProviderError(resp.StatusCode, raw)
		c.logger.WithFields(map[string]interface{}{
			"method":        method,
			"status_code":   resp.StatusCode,
			"provider_code": providerErr.ProviderCode,
		}).Warn("Identity provider rejected request")
		return providerErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Code: CodeUnknown, Message: "failed to decode identity provider response", Err: err}
	}
	return nil
}

// parseProviderError classifies an error body such as
// {"error":{"code":400,"message":"WEAK_PASSWORD : Password should be at least 6 characters"}}
func parseProviderError(status int, raw []byte) *Error {
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Message == "" {
		return &Error{
			Code:    CodeUnknown,
			Message: fmt.Sprintf("identity provider returned status %d", status),
		}
	}

	message := body.Error.Message
	providerCode := message
	if i := strings.Index(message, " : "); i >= 0 {
		providerCode = message[:i]
	}

	code, ok := providerCodes[providerCode]
	if !ok {
		code = CodeUnknown
	}

	return &Error{
		Code:         code,
		ProviderCode: providerCode,
		Message:      message,
	}
}
