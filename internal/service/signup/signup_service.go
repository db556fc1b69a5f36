package signup

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"signup-api/internal/domain"
	"signup-api/internal/repository"
	"signup-api/internal/service"
	"signup-api/internal/service/identity"
	"signup-api/pkg/auth/google"
	"signup-api/pkg/errors"
	"signup-api/pkg/logger"
)

// ErrFormCompleted is returned when a Google signup is started from a form
// that already finished one
var ErrFormCompleted = stderrors.New("signup form already completed")

// Dependencies are the collaborators of the signup flows
type Dependencies struct {
	Identity       service.IdentityProvider
	Google         service.GoogleAuthenticator
	Profiles       repository.ProfileRepository
	Mail           service.WelcomeSender
	Sessions       service.SessionService
	Forms          *FormTracker
	WelcomeTimeout time.Duration
}

// Service sequences a signup: credential, profile, welcome email, session,
// redirect.
type Service struct {
	identity       service.IdentityProvider
	google         service.GoogleAuthenticator
	profiles       repository.ProfileRepository
	mail           service.WelcomeSender
	sessions       service.SessionService
	forms          *FormTracker
	validate       *validator.Validate
	welcomeTimeout time.Duration
	tracer         trace.Tracer
	logger         *logger.Logger
	now            func() time.Time

	welcome sync.WaitGroup
}

// NewService creates a new signup service
func NewService(deps Dependencies, logger *logger.Logger) *Service {
	timeout := deps.WelcomeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		identity:       deps.Identity,
		google:         deps.Google,
		profiles:       deps.Profiles,
		mail:           deps.Mail,
		sessions:       deps.Sessions,
		forms:          deps.Forms,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		welcomeTimeout: timeout,
		tracer:         otel.Tracer("signup-api/signup"),
		logger:         logger,
		now:            time.Now,
	}
}

// SignUpWithEmail runs the email/password signup
func (s *Service) SignUpWithEmail(ctx context.Context, req domain.EmailSignupRequest) (result *domain.SignupResult, err error) {
	ctx, span := s.tracer.Start(ctx, "signup.email")
	defer span.End()

	req.Name = norm.NFC.String(strings.TrimSpace(req.Name))
	req.Email = strings.TrimSpace(req.Email)

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	// Without a form ID the guard is keyed on the email. That key only
	// excludes concurrent submissions and is released when the attempt ends,
	// so a later signup for the same address still reaches the provider.
	formID := req.FormID
	emailKeyed := formID == ""
	if emailKeyed {
		formID = "email:" + strings.ToLower(req.Email)
	}
	span.SetAttributes(attribute.String("signup.form_id", formID))

	acquired, state, err := s.forms.Begin(ctx, formID)
	if err != nil {
		return nil, errors.NewInternalError("Internal server error", err)
	}
	if !acquired {
		if emailKeyed {
			return nil, s.inProgress(formID)
		}
		return s.blockedForm(formID, state)
	}
	defer func() { s.finishForm(ctx, formID, err == nil && !emailKeyed) }()

	cred, err := s.identity.CreateCredential(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create credential")
		return nil, emailSignupError(err)
	}
	span.SetAttributes(attribute.String("signup.uid", cred.UID))

	profile := &domain.Profile{
		Email:     cred.Email,
		Name:      req.Name,
		Role:      domain.RoleUser,
		CreatedAt: s.now().UTC(),
	}
	if profile.Email == "" {
		profile.Email = req.Email
	}

	if err := s.profiles.Create(ctx, cred.UID, profile); err != nil {
		// The credential stays behind without a profile; nothing rolls it back.
		s.logger.WithError(err).WithField("uid", cred.UID).Error("Profile write failed, credential orphaned")
		span.RecordError(err)
		span.SetStatus(codes.Error, "create profile")
		return nil, errors.NewInternalError(emailFailedPrefix+MsgProfileFailed, err).
			WithCode(identity.CodeUnknown.String())
	}

	s.sendWelcome(ctx, cred.UID, profile.Email, profile.Name)

	return s.complete(ctx, formID, cred, profile), nil
}

// BeginGoogleSignUp marks the form as submitting and returns the Google
// consent URL. An empty formID gets a fresh one.
func (s *Service) BeginGoogleSignUp(ctx context.Context, formID string) (string, error) {
	if formID == "" {
		formID = uuid.NewString()
	}

	acquired, state, err := s.forms.Begin(ctx, formID)
	if err != nil {
		return "", errors.NewInternalError("Internal server error", err)
	}
	if !acquired {
		if state == domain.FormRedirected {
			return "", ErrFormCompleted
		}
		return "", s.inProgress(formID)
	}

	oauthState := uuid.NewString()
	if err := s.forms.BindState(ctx, oauthState, formID); err != nil {
		s.finishForm(ctx, formID, false)
		return "", errors.NewInternalError("Internal server error", err)
	}

	return s.google.AuthCodeURL(oauthState), nil
}

// CompleteGoogleSignUp finishes the Google signup started by BeginGoogleSignUp
func (s *Service) CompleteGoogleSignUp(ctx context.Context, cb domain.GoogleCallback) (result *domain.SignupResult, err error) {
	ctx, span := s.tracer.Start(ctx, "signup.google")
	defer span.End()

	formID, err := s.forms.ConsumeState(ctx, cb.State)
	if err != nil {
		if stderrors.Is(err, ErrUnknownState) {
			return nil, googleSignupError(&identity.Error{Code: identity.CodeUnknown, Message: "invalid or expired sign-in state"})
		}
		return nil, errors.NewInternalError("Internal server error", err)
	}
	span.SetAttributes(attribute.String("signup.form_id", formID))
	defer func() { s.finishForm(ctx, formID, err == nil) }()

	if cb.Error == "access_denied" {
		return nil, googleSignupError(&identity.Error{Code: identity.CodePopupClosedByUser, ProviderCode: cb.Error, Message: cb.Error})
	}
	if cb.Error != "" {
		return nil, googleSignupError(&identity.Error{Code: identity.CodeUnknown, ProviderCode: cb.Error, Message: cb.Error})
	}
	if cb.Code == "" {
		return nil, googleSignupError(&identity.Error{Code: identity.CodeUnknown, Message: "missing authorization code"})
	}

	idToken, err := s.google.Exchange(ctx, cb.Code)
	if err != nil {
		span.RecordError(err)
		return nil, googleSignupError(&identity.Error{Code: identity.CodeUnknown, Message: err.Error(), Err: err})
	}

	cred, err := s.identity.SignInWithIdP(ctx, google.ProviderID, idToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign in with idp")
		return nil, googleSignupError(err)
	}
	span.SetAttributes(attribute.String("signup.uid", cred.UID))

	profile := &domain.Profile{
		Email:     cred.Email,
		Name:      norm.NFC.String(strings.TrimSpace(cred.DisplayName)),
		Role:      domain.RoleUser,
		CreatedAt: s.now().UTC(),
	}

	if err := s.profiles.Merge(ctx, cred.UID, profile); err != nil {
		s.logger.WithError(err).WithField("uid", cred.UID).Error("Profile merge failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge profile")
		return nil, errors.NewInternalError(googleFailedPrefix+MsgProfileFailed, err).
			WithCode(identity.CodeUnknown.String())
	}

	s.sendWelcome(ctx, cred.UID, profile.Email, profile.Name)

	return s.complete(ctx, formID, cred, profile), nil
}

// FormState reports where a signup form is in its lifecycle
func (s *Service) FormState(ctx context.Context, formID string) (domain.FormState, error) {
	return s.forms.State(ctx, formID)
}

// Shutdown waits for in-flight welcome emails
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.welcome.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// complete starts the session and builds the redirect. A session failure is
// logged only: the account exists and the browser is still sent home.
func (s *Service) complete(ctx context.Context, formID string, cred *domain.Credential, profile *domain.Profile) *domain.SignupResult {
	result := &domain.SignupResult{
		FormID:   formID,
		UID:      cred.UID,
		Profile:  profile,
		Redirect: domain.HomeRoute,
	}

	sess, token, err := s.sessions.Start(ctx, cred, profile, formID)
	if err != nil {
		s.logger.WithError(err).WithField("uid", cred.UID).Warn("Failed to start session after signup")
		return result
	}
	result.Session = sess
	result.Token = token

	s.logger.WithFields(map[string]interface{}{
		"uid":      cred.UID,
		"provider": cred.ProviderID,
		"form_id":  formID,
	}).Info("Signup completed")
	return result
}

// blockedForm answers a submission for a client form that is not idle
func (s *Service) blockedForm(formID string, state domain.FormState) (*domain.SignupResult, error) {
	if state == domain.FormRedirected {
		return &domain.SignupResult{FormID: formID, Redirect: domain.HomeRoute}, nil
	}
	return nil, s.inProgress(formID)
}

func (s *Service) inProgress(formID string) *errors.AppError {
	s.logger.WithField("form_id", formID).Info("Rejected concurrent signup submission")
	return errors.NewConflictError(MsgInProgress).WithCode(CodeSubmissionInProgress)
}

func (s *Service) finishForm(ctx context.Context, formID string, success bool) {
	if err := s.forms.Finish(context.WithoutCancel(ctx), formID, success); err != nil {
		s.logger.WithError(err).WithField("form_id", formID).Warn("Failed to update signup form state")
	}
}

// validationError maps the first failing field to its form message
func validationError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.NewValidationError(err.Error(), nil)
	}

	fe := verrs[0]
	details := map[string]interface{}{"field": strings.ToLower(fe.Field())}
	switch fe.Field() {
	case "Name":
		return errors.NewValidationError(MsgNameRequired, details)
	case "Email":
		return errors.NewValidationError(MsgInvalidEmail, details).WithCode(identity.CodeInvalidEmail.String())
	case "Password":
		return errors.NewValidationError(MsgWeakPassword, details).WithCode(identity.CodeWeakPassword.String())
	default:
		return errors.NewValidationError(fe.Error(), details)
	}
}
