package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ErrImmutableClaimMutation is returned when a ClaimsDecorator touches a
// protected claim.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION")

// immutableClaimsSnapshot holds the claim values a decorator must not
// change: identity, issuer, audience, and the token timestamps.
type immutableClaimsSnapshot struct {
	subject     string
	issuer      string
	uid         string
	uname       string
	audience    []string
	issuedAt    time.Time
	hasIssuedAt bool
	expiresAt   time.Time
	hasExpires  bool
}

func captureImmutableClaims(claims *JWTClaims) immutableClaimsSnapshot {
	snap := immutableClaimsSnapshot{
		subject:  claims.RegisteredClaims.Subject,
		issuer:   claims.RegisteredClaims.Issuer,
		uid:      claims.UID,
		uname:    claims.Uname,
		audience: append([]string(nil), claims.RegisteredClaims.Audience...),
	}
	if iat := claims.RegisteredClaims.IssuedAt; iat != nil {
		snap.issuedAt, snap.hasIssuedAt = iat.Time, true
	}
	if exp := claims.RegisteredClaims.ExpiresAt; exp != nil {
		snap.expiresAt, snap.hasExpires = exp.Time, true
	}
	return snap
}

func (snap immutableClaimsSnapshot) validate(claims *JWTClaims) error {
	strings := []struct {
		field string
		want  string
		got   string
	}{
		{"sub", snap.subject, claims.RegisteredClaims.Subject},
		{"iss", snap.issuer, claims.RegisteredClaims.Issuer},
		{"uid", snap.uid, claims.UID},
		{"uname", snap.uname, claims.Uname},
	}
	for _, c := range strings {
		if c.got != c.want {
			return immutableClaimViolation(c.field)
		}
	}

	if !audienceEqual(claims.RegisteredClaims.Audience, snap.audience) {
		return immutableClaimViolation("aud")
	}
	if err := checkNumericDate(claims.RegisteredClaims.IssuedAt, snap.issuedAt, snap.hasIssuedAt, "iat"); err != nil {
		return err
	}
	return checkNumericDate(claims.RegisteredClaims.ExpiresAt, snap.expiresAt, snap.hasExpires, "exp")
}

func checkNumericDate(date *jwt.NumericDate, want time.Time, wantSet bool, field string) error {
	switch {
	case !wantSet && date == nil:
		return nil
	case !wantSet || date == nil:
		return immutableClaimViolation(field)
	case !date.Time.Equal(want):
		return immutableClaimViolation(field)
	}
	return nil
}

func audienceEqual(a jwt.ClaimStrings, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
