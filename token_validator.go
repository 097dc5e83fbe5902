package auth

// TokenValidator validates a raw token string and extracts its claims
// without tying callers to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrUnableToDecodeSession
	}
	return f(tokenString)
}

// MultiTokenValidator runs a chain of validators in order: typically the
// local HS256 service first, then the identity-provider validator for
// bridge-issued tokens. A malformed-token error moves on to the next
// validator; any other error stops the chain.
type MultiTokenValidator struct {
	chain []TokenValidator
}

// NewMultiTokenValidator builds a composite validator, skipping nil entries.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	m := &MultiTokenValidator{chain: make([]TokenValidator, 0, len(validators))}
	for _, v := range validators {
		if v != nil {
			m.chain = append(m.chain, v)
		}
	}
	return m
}

func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	var malformed error
	for _, v := range m.chain {
		claims, err := v.Validate(tokenString)
		switch {
		case err == nil:
			return claims, nil
		case IsMalformedError(err):
			malformed = err
		default:
			return nil, err
		}
	}
	if malformed != nil {
		return nil, malformed
	}
	return nil, ErrTokenMalformed
}
