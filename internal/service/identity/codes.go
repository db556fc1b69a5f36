package identity

// Code is the closed set of identity-provider failures the signup flow knows
// how to explain. Provider responses are mapped onto it at the adapter
// boundary; everything unrecognised becomes CodeUnknown.
type Code int

const (
	CodeUnknown Code = iota
	CodeEmailAlreadyInUse
	CodeWeakPassword
	CodeInvalidEmail
	CodePopupClosedByUser
	CodeAccountExistsWithDifferentCredential
)

var codeNames = map[Code]string{
	CodeUnknown:                              "auth/unknown",
	CodeEmailAlreadyInUse:                    "auth/email-already-in-use",
	CodeWeakPassword:                         "auth/weak-password",
	CodeInvalidEmail:                         "auth/invalid-email",
	CodePopupClosedByUser:                    "auth/popup-closed-by-user",
	CodeAccountExistsWithDifferentCredential: "auth/account-exists-with-different-credential",
}

// String returns the canonical "auth/..." form of the code
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return codeNames[CodeUnknown]
}

// providerCodes maps the REST API's error message prefixes
var providerCodes = map[string]Code{
	"EMAIL_EXISTS":      CodeEmailAlreadyInUse,
	"WEAK_PASSWORD":     CodeWeakPassword,
	"INVALID_EMAIL":     CodeInvalidEmail,
	"MISSING_EMAIL":     CodeInvalidEmail,
	"NEED_CONFIRMATION": CodeAccountExistsWithDifferentCredential,
}

// Error is a classified identity-provider failure
type Error struct {
	Code         Code
	ProviderCode string
	Message      string
	Err          error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
