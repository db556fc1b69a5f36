package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signup-api/internal/config"
	"signup-api/internal/container"
	"signup-api/internal/domain"
	"signup-api/internal/middleware"
	"signup-api/internal/service"
	"signup-api/internal/service/mail"
	"signup-api/internal/service/session"
	"signup-api/internal/service/signup"
	"signup-api/pkg/errors"
	"signup-api/pkg/logger"
	"signup-api/pkg/redis"
)

type fakeSignup struct {
	emailResult  *domain.SignupResult
	emailErr     error
	lastRequest  domain.EmailSignupRequest
	authURL      string
	beginErr     error
	googleResult *domain.SignupResult
	googleErr    error
	lastCallback domain.GoogleCallback
	formState    domain.FormState
	formErr      error
	lastFormID   string
}

func (f *fakeSignup) SignUpWithEmail(_ context.Context, req domain.EmailSignupRequest) (*domain.SignupResult, error) {
	f.lastRequest = req
	return f.emailResult, f.emailErr
}

func (f *fakeSignup) BeginGoogleSignUp(context.Context, string) (string, error) {
	return f.authURL, f.beginErr
}

func (f *fakeSignup) CompleteGoogleSignUp(_ context.Context, cb domain.GoogleCallback) (*domain.SignupResult, error) {
	f.lastCallback = cb
	return f.googleResult, f.googleErr
}

func (f *fakeSignup) FormState(_ context.Context, formID string) (domain.FormState, error) {
	f.lastFormID = formID
	return f.formState, f.formErr
}

func (f *fakeSignup) Shutdown(context.Context) error { return nil }

type fakeMail struct {
	err   error
	calls []domain.WelcomeEmailRequest
}

func (f *fakeMail) SendWelcome(_ context.Context, email, name string) error {
	f.calls = append(f.calls, domain.WelcomeEmailRequest{Email: email, Name: name})
	return f.err
}

type testEnv struct {
	router   *chi.Mux
	signup   *fakeSignup
	mail     *fakeMail
	sessions *session.Service
	mr       *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient, err := redis.NewClient("redis://"+mr.Addr(), "test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisClient.Close() })

	log := logger.NewNop()
	env := &testEnv{
		signup:   &fakeSignup{},
		mail:     &fakeMail{},
		sessions: session.NewService(redisClient, session.Config{Secret: "secret", TTL: time.Hour}, log),
		mr:       mr,
	}

	c := &container.Container{
		Config: &config.Config{
			FrontendURL:    "http://localhost:3000",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logger:      log,
		RedisClient: redisClient,
		Services: &service.Services{
			Signup:  env.signup,
			Session: env.sessions,
			Mail:    env.mail,
		},
	}

	cors := middleware.DefaultCORSConfig(c.Config.AllowedOrigins)
	signupHandler := NewSignupHandler(c)
	googleHandler := NewGoogleHandler(c)
	sessionHandler := NewSessionHandler(c, cors)

	r := chi.NewRouter()
	r.Use(middleware.RequestID(log))
	r.Use(middleware.Session(env.sessions, log))
	r.Get("/health", NewHealthHandler(c).Check)
	r.Post("/api/signup", signupHandler.SignUp)
	r.Get("/api/signup/form", signupHandler.FormStatus)
	r.Get("/api/auth/google/login", googleHandler.Login)
	r.Get("/api/auth/google/callback", googleHandler.Callback)
	r.Get("/api/auth/session", sessionHandler.Status)
	r.Post("/api/auth/logout", sessionHandler.Logout)
	r.Get("/api/auth/watch", sessionHandler.Watch)
	r.Post("/api/send-welcome-email", NewMailHandler(c).SendWelcomeEmail)
	env.router = r
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// signedIn starts a real session and returns its cookie
func (e *testEnv) signedIn(t *testing.T, formID string) *http.Cookie {
	t.Helper()
	_, token, err := e.sessions.Start(context.Background(), &domain.Credential{
		UID:        "uid-1",
		Email:      "ada@example.com",
		ProviderID: "password",
	}, &domain.Profile{Name: "Ada"}, formID)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["redis"])

	env.mr.SetError("server unavailable")
	rec = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSignUp_Success(t *testing.T) {
	env := newTestEnv(t)
	env.signup.emailResult = &domain.SignupResult{
		FormID:   "form-1",
		UID:      "uid-ada",
		Profile:  &domain.Profile{Email: "ada@example.com", Name: "Ada", Role: domain.RoleUser},
		Session:  &domain.Session{ID: "s1", UID: "uid-ada"},
		Token:    "session-token",
		Redirect: domain.HomeRoute,
	}

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(FormIDHeader, "form-1")
	rec := env.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "form-1", env.signup.lastRequest.FormID)
	assert.Equal(t, "secret1", env.signup.lastRequest.Password)

	var body domain.SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "/", body.Redirect)
	require.NotNil(t, body.User)
	assert.Equal(t, "uid-ada", body.User.UID)
	assert.Equal(t, domain.RoleUser, body.User.Role)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, "session-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestSignUp_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "email in use",
			body:        `{"name":"Ada","email":"ada@example.com","password":"secret1"}`,
			err:         errors.NewConflictError(signup.MsgEmailInUse).WithCode("auth/email-already-in-use"),
			wantStatus:  http.StatusConflict,
			wantCode:    "auth/email-already-in-use",
			wantMessage: "This email is already registered. Please login instead.",
		},
		{
			name:        "submission in progress",
			body:        `{"form_id":"f","name":"Ada","email":"ada@example.com","password":"secret1"}`,
			err:         errors.NewConflictError(signup.MsgInProgress).WithCode(signup.CodeSubmissionInProgress),
			wantStatus:  http.StatusConflict,
			wantCode:    "submission_in_progress",
			wantMessage: signup.MsgInProgress,
		},
		{
			name:        "malformed body",
			body:        `{"name":`,
			wantStatus:  http.StatusBadRequest,
			wantMessage: "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.signup.emailErr = tt.err

			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(tt.body)))
			require.Equal(t, tt.wantStatus, rec.Code)

			var body errors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMessage, body.Error.Message)
			assert.NotEmpty(t, body.Error.RequestID)
			assert.Nil(t, sessionCookie(rec))
		})
	}
}

func TestSignUp_AlreadySignedInRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.signup.emailErr = errors.NewInternalError("must not be called", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{}`))
	req.AddCookie(env.signedIn(t, ""))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body domain.SignupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/", body.Redirect)
	assert.Equal(t, "uid-1", body.User.UID)
	assert.Empty(t, env.signup.lastRequest.Email)
}

func TestFormStatus(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		header     string
		state      domain.FormState
		err        error
		wantStatus int
		wantFormID string
	}{
		{
			name:       "query parameter",
			target:     "/api/signup/form?form_id=form-1",
			state:      domain.FormSubmitting,
			wantStatus: http.StatusOK,
			wantFormID: "form-1",
		},
		{
			name:       "header",
			target:     "/api/signup/form",
			header:     "form-2",
			state:      domain.FormRedirected,
			wantStatus: http.StatusOK,
			wantFormID: "form-2",
		},
		{
			name:       "missing form id",
			target:     "/api/signup/form",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			target:     "/api/signup/form?form_id=form-1",
			err:        fmt.Errorf("redis down"),
			wantStatus: http.StatusInternalServerError,
			wantFormID: "form-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.signup.formState = tt.state
			env.signup.formErr = tt.err

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(FormIDHeader, tt.header)
			}
			rec := env.do(req)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantFormID, env.signup.lastFormID)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body domain.FormStatusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantFormID, body.FormID)
			assert.Equal(t, tt.state, body.State)
		})
	}
}

func TestGoogleLogin(t *testing.T) {
	t.Run("redirects to consent page", func(t *testing.T) {
		env := newTestEnv(t)
		env.signup.authURL = "https://accounts.google.test/auth?state=abc"

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/login?form_id=f", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "https://accounts.google.test/auth?state=abc", rec.Header().Get("Location"))
	})

	t.Run("completed form goes home", func(t *testing.T) {
		env := newTestEnv(t)
		env.signup.beginErr = signup.ErrFormCompleted

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/login?form_id=f", nil))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "http://localhost:3000/", rec.Header().Get("Location"))
	})

	t.Run("signed in goes home", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
		req.AddCookie(env.signedIn(t, ""))

		rec := env.do(req)
		assert.Equal(t, "http://localhost:3000/", rec.Header().Get("Location"))
	})
}

func TestGoogleCallback(t *testing.T) {
	t.Run("success sets cookie and goes home", func(t *testing.T) {
		env := newTestEnv(t)
		env.signup.googleResult = &domain.SignupResult{UID: "uid-g", Token: "tok", Redirect: domain.HomeRoute}

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=s&code=c", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "http://localhost:3000/", rec.Header().Get("Location"))
		assert.Equal(t, domain.GoogleCallback{State: "s", Code: "c"}, env.signup.lastCallback)
		require.NotNil(t, sessionCookie(rec))
	})

	t.Run("failure returns to signup page with message", func(t *testing.T) {
		env := newTestEnv(t)
		env.signup.googleErr = errors.NewAuthenticationError(signup.MsgPopupClosed).WithCode("auth/popup-closed-by-user")

		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?state=s&error=access_denied", nil))

		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/signup", loc.Path)
		assert.Equal(t, "auth/popup-closed-by-user", loc.Query().Get("error"))
		assert.Equal(t, "Sign-in cancelled. Please try again.", loc.Query().Get("message"))
		assert.Equal(t, "access_denied", env.signup.lastCallback.Error)
		assert.Nil(t, sessionCookie(rec))
	})
}

func TestSessionStatusAndLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	var status domain.SessionStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Authenticated)

	cookie := env.signedIn(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "/", status.Redirect)
	assert.Equal(t, "Ada", status.User.Name)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.AddCookie(cookie)
	rec = env.do(req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Authenticated)
}

func TestWatch(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/auth/watch?form_id=form-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the handler subscribes after the upgrade returns
	require.Eventually(t, func() bool {
		return len(env.mr.PubSubChannels("*")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	env.signedIn(t, "form-1")

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.SessionEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, domain.SessionAuthenticated, event.Type)
	assert.Equal(t, "uid-1", event.UID)
	assert.Equal(t, "/", event.Redirect)
}

func TestWatch_AlreadySignedIn(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	cookie := env.signedIn(t, "")
	header := http.Header{}
	header.Set("Cookie", cookie.String())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/auth/watch?form_id=form-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event domain.SessionEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, domain.SessionAuthenticated, event.Type)
}

func TestWatch_RequiresFormID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/watch", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendWelcomeEmail(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		relayErr   error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "forwarded",
			body:       `{"email":"ada@example.com","name":"Ada"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true}`,
		},
		{
			name:       "upstream rejected",
			body:       `{"email":"ada@example.com","name":"Ada"}`,
			relayErr:   &mail.RelayError{Message: mail.FailedMessage, StatusCode: http.StatusServiceUnavailable},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Failed to send welcome email"}`,
		},
		{
			name:       "transport failure",
			body:       `{"email":"ada@example.com","name":"Ada"}`,
			relayErr:   &mail.RelayError{Message: "dial tcp: connection refused"},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"dial tcp: connection refused"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.mail.err = tt.relayErr

			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/send-welcome-email", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			require.Len(t, env.mail.calls, 1)
			assert.Equal(t, domain.WelcomeEmailRequest{Email: "ada@example.com", Name: "Ada"}, env.mail.calls[0])
		})
	}
}

func TestSendWelcomeEmail_UndecodableBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/send-welcome-email", strings.NewReader("not json")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.mail.calls)

	var body domain.RelayErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
}

func TestSendWelcomeEmail_RelaysUpstream503(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	c := &container.Container{
		Config: &config.Config{},
		Logger: logger.NewNop(),
		Services: &service.Services{
			Mail: mail.NewRelay(func() string { return upstream.URL }, upstream.Client(), logger.NewNop()),
		},
	}

	rec := httptest.NewRecorder()
	NewMailHandler(c).SendWelcomeEmail(rec, httptest.NewRequest(http.MethodPost, "/api/send-welcome-email",
		strings.NewReader(`{"email":"ada@example.com","name":"Ada"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to send welcome email"}`, rec.Body.String())
}
