package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signup-api/pkg/logger"
)

func newProvider(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "api-key", "http://localhost", srv.Client(), logger.NewNop())
}

func writeProviderError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": 400, "message": message},
	})
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeEmailAlreadyInUse, "auth/email-already-in-use"},
		{CodeWeakPassword, "auth/weak-password"},
		{CodeInvalidEmail, "auth/invalid-email"},
		{CodePopupClosedByUser, "auth/popup-closed-by-user"},
		{CodeAccountExistsWithDifferentCredential, "auth/account-exists-with-different-credential"},
		{CodeUnknown, "auth/unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}

	assert.Equal(t, "auth/unknown", Code(99).String())
}

func TestClient_CreateCredential(t *testing.T) {
	var got signUpRequest
	c := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signUp", r.URL.Path)
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"localId":      "uid-123",
			"email":        "ada@example.com",
			"idToken":      "id-token",
			"refreshToken": "refresh-token",
			"expiresIn":    "3600",
		})
	})

	cred, err := c.CreateCredential(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "secret1", got.Password)
	assert.True(t, got.ReturnSecureToken)

	assert.Equal(t, "uid-123", cred.UID)
	assert.Equal(t, "ada@example.com", cred.Email)
	assert.Equal(t, "password", cred.ProviderID)
	assert.True(t, cred.IsNewUser)
}

func TestClient_CreateCredential_ProviderErrors(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		wantCode     Code
		wantProvider string
	}{
		{"email exists", "EMAIL_EXISTS", CodeEmailAlreadyInUse, "EMAIL_EXISTS"},
		{"weak password with detail", "WEAK_PASSWORD : Password should be at least 6 characters", CodeWeakPassword, "WEAK_PASSWORD"},
		{"invalid email", "INVALID_EMAIL", CodeInvalidEmail, "INVALID_EMAIL"},
		{"missing email", "MISSING_EMAIL", CodeInvalidEmail, "MISSING_EMAIL"},
		{"unknown code falls back", "OPERATION_NOT_ALLOWED", CodeUnknown, "OPERATION_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
				writeProviderError(w, tt.message)
			})

			cred, err := c.CreateCredential(context.Background(), "ada@example.com", "secret1")
			assert.Nil(t, cred)

			var idErr *Error
			require.True(t, errors.As(err, &idErr))
			assert.Equal(t, tt.wantCode, idErr.Code)
			assert.Equal(t, tt.wantProvider, idErr.ProviderCode)
			assert.Equal(t, tt.message, idErr.Message)
		})
	}
}

func TestClient_CreateCredential_UnparseableError(t *testing.T) {
	c := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := c.CreateCredential(context.Background(), "ada@example.com", "secret1")

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, CodeUnknown, idErr.Code)
	assert.Equal(t, "identity provider returned status 503", idErr.Message)
}

func TestClient_CreateCredential_TransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "api-key", "", nil, logger.NewNop())

	_, err := c.CreateCredential(context.Background(), "ada@example.com", "secret1")

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, CodeUnknown, idErr.Code)
	assert.NotNil(t, idErr.Unwrap())
}

func TestClient_SignInWithIdP(t *testing.T) {
	var got signInWithIdpRequest
	c := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts:signInWithIdp", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"localId":     "uid-google",
			"email":       "grace@example.com",
			"displayName": "Grace Hopper",
			"providerId":  "google.com",
			"isNewUser":   true,
		})
	})

	cred, err := c.SignInWithIdP(context.Background(), "google.com", "google-id-token")
	require.NoError(t, err)

	body, err := url.ParseQuery(got.PostBody)
	require.NoError(t, err)
	assert.Equal(t, "google-id-token", body.Get("id_token"))
	assert.Equal(t, "google.com", body.Get("providerId"))
	assert.Equal(t, "http://localhost", got.RequestURI)
	assert.True(t, got.ReturnSecureToken)

	assert.Equal(t, "uid-google", cred.UID)
	assert.Equal(t, "Grace Hopper", cred.DisplayName)
	assert.Equal(t, "google.com", cred.ProviderID)
	assert.True(t, cred.IsNewUser)
}

func TestClient_SignInWithIdP_NeedConfirmation(t *testing.T) {
	c := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"email":            "grace@example.com",
			"needConfirmation": true,
		})
	})

	cred, err := c.SignInWithIdP(context.Background(), "google.com", "google-id-token")
	assert.Nil(t, cred)

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, CodeAccountExistsWithDifferentCredential, idErr.Code)
}
