package signup

import (
	stderrors "errors"

	"signup-api/internal/service/identity"
	"signup-api/pkg/errors"
)

// User-facing messages. The wording is part of the API contract.
const (
	MsgEmailInUse      = "This email is already registered. Please login instead."
	MsgWeakPassword    = "Password should be at least 6 characters."
	MsgInvalidEmail    = "Please enter a valid email address."
	MsgNameRequired    = "Please enter your name."
	MsgPopupClosed     = "Sign-in cancelled. Please try again."
	MsgAccountExists   = "An account already exists with the same email. Please use a different sign-in method."
	MsgProfileFailed   = "Failed to save user profile"
	MsgInProgress      = "A signup for this form is already in progress."
	emailFailedPrefix  = "Signup failed: "
	googleFailedPrefix = "Google sign-in failed: "
)

// CodeSubmissionInProgress marks a rejected concurrent submission
const CodeSubmissionInProgress = "submission_in_progress"

// emailSignupError renders a failure of the email path
func emailSignupError(err error) *errors.AppError {
	var idErr *identity.Error
	if !stderrors.As(err, &idErr) {
		return errors.NewInternalError(emailFailedPrefix+err.Error(), err).
			WithCode(identity.CodeUnknown.String())
	}

	code := idErr.Code.String()
	switch idErr.Code {
	case identity.CodeEmailAlreadyInUse:
		return errors.NewConflictError(MsgEmailInUse).WithCode(code)
	case identity.CodeWeakPassword:
		return errors.NewValidationError(MsgWeakPassword, nil).WithCode(code)
	case identity.CodeInvalidEmail:
		return errors.NewValidationError(MsgInvalidEmail, nil).WithCode(code)
	default:
		return errors.NewExternalError(emailFailedPrefix+idErr.Message, err).WithCode(code)
	}
}

// googleSignupError renders a failure of the Google path
func googleSignupError(err error) *errors.AppError {
	var idErr *identity.Error
	if !stderrors.As(err, &idErr) {
		return errors.NewInternalError(googleFailedPrefix+err.Error(), err).
			WithCode(identity.CodeUnknown.String())
	}

	code := idErr.Code.String()
	switch idErr.Code {
	case identity.CodePopupClosedByUser:
		return errors.NewAuthenticationError(MsgPopupClosed).WithCode(code)
	case identity.CodeAccountExistsWithDifferentCredential:
		return errors.NewConflictError(MsgAccountExists).WithCode(code)
	default:
		return errors.NewExternalError(googleFailedPrefix+idErr.Message, err).WithCode(code)
	}
}
