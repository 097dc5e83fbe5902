package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrUnableToFindSession is the error when our reequest has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data")

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can not be an empty string")

// ErrMismatchedHashAndPassword is the generic credential mismatch error.
// We return it for unknown identifiers too so responses do not leak
// which accounts exist.
var ErrMismatchedHashAndPassword = errors.New("credentials do not match")

// ErrTooManyLoginAttempts is returned once an account hits the attempt
// ceiling inside the cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode("TOO_MANY_LOGIN_ATTEMPTS").
	WithCode(goerrors.CodeTooManyRequests)

// Text codes for token validation failures. External token validators
// reuse them so callers can switch on a stable code regardless of which
// issuer minted the token.
const (
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
)

// ErrTokenExpired is returned when a session token is past its expiry
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token fails signature or shape checks
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateIdentifier is returned when the username or email unique
// constraint rejects a registration.
var ErrDuplicateIdentifier = goerrors.New("username or email already registered", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_IDENTIFIER").
	WithCode(goerrors.CodeConflict)

// ErrCodeInvalid is returned when a submitted verification code does not
// match the outstanding challenge.
var ErrCodeInvalid = goerrors.New("verification code is invalid", goerrors.CategoryAuth).
	WithTextCode("VERIFICATION_CODE_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeExpired is returned when the challenge is past its expiry, even
// if the submitted digits match.
var ErrCodeExpired = goerrors.New("verification code has expired", goerrors.CategoryAuth).
	WithTextCode("VERIFICATION_CODE_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrResendCooldown is returned when a resend is requested before the
// cooldown window has elapsed.
var ErrResendCooldown = goerrors.New("verification code was sent recently", goerrors.CategoryRateLimit).
	WithTextCode("VERIFICATION_RESEND_COOLDOWN").
	WithCode(goerrors.CodeTooManyRequests)

// ErrSignupDisabled is returned when the signup feature gate rejects a
// self-registration attempt.
var ErrSignupDisabled = goerrors.New("signup is disabled", goerrors.CategoryAuthz).
	WithTextCode("SIGNUP_DISABLED").
	WithCode(goerrors.CodeForbidden)

// ErrAccountNotApproved is returned by resource guards when a pending
// account reaches for course material. Login itself never returns it.
var ErrAccountNotApproved = goerrors.New("account is awaiting approval", goerrors.CategoryAuthz).
	WithTextCode("ACCOUNT_NOT_APPROVED").
	WithCode(goerrors.CodeForbidden)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
