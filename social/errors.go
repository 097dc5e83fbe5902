package social

import "github.com/goliatone/go-errors"

// Wire-level text codes, stable across releases.
const (
	TextCodeProviderNotFound  = "social_provider_not_found"
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeTokenExchangeFail = "social_token_exchange_failed"
	TextCodeUserInfoFail      = "social_user_info_failed"
	TextCodeEmailNotVerified  = "social_email_not_verified"
	TextCodeEmailExists       = "social_email_exists"
	TextCodeSignupDisabled    = "social_signup_disabled"
	TextCodeLinkingDisabled   = "social_linking_disabled"
	TextCodeLastAuthMethod    = "social_last_auth_method"
)

var (
	// ErrProviderNotFound: the requested provider is not registered.
	ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
				WithTextCode(TextCodeProviderNotFound).
				WithCode(errors.CodeNotFound)

	// ErrInvalidState: the OAuth state failed signature or structure checks.
	ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
			WithTextCode(TextCodeInvalidState).
			WithCode(errors.CodeBadRequest)

	// ErrStateExpired: the OAuth state outlived its TTL.
	ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
			WithTextCode(TextCodeStateExpired).
			WithCode(errors.CodeBadRequest)

	// ErrTokenExchangeFailed: the provider rejected the authorization code.
	ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
				WithTextCode(TextCodeTokenExchangeFail).
				WithCode(errors.CodeUnauthorized)

	// ErrUserInfoFailed: the provider profile endpoint failed.
	ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
				WithTextCode(TextCodeUserInfoFail).
				WithCode(errors.CodeUnauthorized)

	// ErrEmailNotVerified: the provider has not verified the account email.
	ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
				WithTextCode(TextCodeEmailNotVerified).
				WithCode(errors.CodeForbidden)

	// ErrEmailAlreadyExists: a local account already owns this email.
	ErrEmailAlreadyExists = errors.New("email already exists", errors.CategoryValidation).
				WithTextCode(TextCodeEmailExists).
				WithCode(errors.CodeConflict)

	// ErrSignupNotAllowed: bridge signup is gated off.
	ErrSignupNotAllowed = errors.New("signup not allowed", errors.CategoryAuth).
				WithTextCode(TextCodeSignupDisabled).
				WithCode(errors.CodeForbidden)

	// ErrLinkingNotAllowed: account linking is gated off.
	ErrLinkingNotAllowed = errors.New("linking not allowed", errors.CategoryAuth).
				WithTextCode(TextCodeLinkingDisabled).
				WithCode(errors.CodeForbidden)

	// ErrLastAuthMethod: unlinking would strand the account with no way in.
	ErrLastAuthMethod = errors.New("cannot unlink last authentication method", errors.CategoryValidation).
				WithTextCode(TextCodeLastAuthMethod).
				WithCode(errors.CodeBadRequest)
)
