package models

// FailureReason classifies an unsuccessful AuthResult so that callers can
// branch without parsing the human-readable messages.
type FailureReason string

const (
	ReasonNone                    FailureReason = ""
	ReasonUserAlreadyExists       FailureReason = "user_already_exists"
	ReasonRegistrationRejected    FailureReason = "registration_rejected"
	ReasonUserNotFound            FailureReason = "user_not_found"
	ReasonInvalidCredentials      FailureReason = "invalid_credentials"
	ReasonInvalidToken            FailureReason = "invalid_token"
	ReasonTokenNotYetExpired      FailureReason = "token_not_yet_expired"
	ReasonRefreshTokenNotFound    FailureReason = "refresh_token_not_found"
	ReasonRefreshTokenExpired     FailureReason = "refresh_token_expired"
	ReasonRefreshTokenInvalidated FailureReason = "refresh_token_invalidated"
	ReasonRefreshTokenUsed        FailureReason = "refresh_token_used"
	ReasonTokenMismatch           FailureReason = "token_mismatch"
)

// AuthResult is returned by every IdentityService operation. Expected
// business failures are reported here with Success=false and at least one
// entry in Errors.
type AuthResult struct {
	Success      bool
	Token        string
	RefreshToken string
	UserID       string
	Reason       FailureReason
	Errors       []string
}

// Failure builds an unsuccessful result.
func Failure(reason FailureReason, errs ...string) *AuthResult {
	return &AuthResult{Reason: reason, Errors: errs}
}
