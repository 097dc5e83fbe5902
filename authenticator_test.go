package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// TestIdentity is a simple Identity implementation for tests.
type TestIdentity struct {
	id       string
	username string
	email    string
	role     string
	status   auth.UserStatus
}

func (t TestIdentity) ID() string       { return t.id }
func (t TestIdentity) Username() string { return t.username }
func (t TestIdentity) Email() string    { return t.email }
func (t TestIdentity) Role() string     { return t.role }
func (t TestIdentity) Status() auth.UserStatus {
	if t.status == "" {
		return auth.UserStatusActive
	}
	return t.status
}

func activeStudent() TestIdentity {
	return TestIdentity{
		id:       uuid.New().String(),
		username: "maria.santos",
		email:    "maria.santos@school.edu",
		role:     string(auth.RoleStudent),
		status:   auth.UserStatusActive,
	}
}

func activeAdmin() TestIdentity {
	return TestIdentity{
		id:       uuid.New().String(),
		username: "registrar",
		email:    "registrar@school.edu",
		role:     string(auth.RoleAdmin),
		status:   auth.UserStatusActive,
	}
}

func newMockConfig() *MockConfig {
	mockConfig := new(MockConfig)
	mockConfig.On("GetSigningKey").Return("test-signing-key")
	mockConfig.On("GetTokenExpiration").Return(24)
	mockConfig.On("GetIssuer").Return("test-issuer")
	mockConfig.On("GetAudience").Return([]string{"test:audience"})
	return mockConfig
}

// parseIssuedClaims decodes a token minted with the test signing key.
func parseIssuedClaims(t *testing.T, token string) *auth.JWTClaims {
	t.Helper()

	parsed, err := jwt.ParseWithClaims(token, &auth.JWTClaims{}, func(t *jwt.Token) (any, error) {
		return []byte("test-signing-key"), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(*auth.JWTClaims)
	require.True(t, ok)
	return claims
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig())

	t.Run("Successful login", func(t *testing.T) {
		identity := activeAdmin()
		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims := parseIssuedClaims(t, token)
		assert.Equal(t, identity.ID(), claims.Subject())
		assert.Equal(t, "test-issuer", claims.RegisteredClaims.Issuer)
		assert.Equal(t, jwt.ClaimStrings{"test:audience"}, claims.RegisteredClaims.Audience)
		assert.NotEmpty(t, claims.RegisteredClaims.ID)
		assert.Equal(t, string(auth.RoleAdmin), claims.UserRole)
	})

	t.Run("Failed login - invalid credentials", func(t *testing.T) {
		mockProvider.On("VerifyIdentity", ctx, "bad@school.edu", "wrongpassword").
			Return(nil, errors.New("invalid credentials")).Once()

		token, err := authenticator.Login(ctx, "bad@school.edu", "wrongpassword")
		assert.Error(t, err)
		assert.Empty(t, token)
		assert.Contains(t, err.Error(), "invalid credentials")
	})

	t.Run("Failed login - identity not found", func(t *testing.T) {
		mockProvider.On("VerifyIdentity", ctx, "nobody@school.edu", "password123").
			Return(nil, auth.ErrIdentityNotFound).Once()

		token, err := authenticator.Login(ctx, "nobody@school.edu", "password123")
		assert.Error(t, err)
		assert.Empty(t, token)
		assert.Contains(t, err.Error(), "identity not found")
	})

	t.Run("Pending account still gets a token", func(t *testing.T) {
		identity := activeStudent()
		identity.status = auth.UserStatusPending
		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		require.NoError(t, err)
		claims := parseIssuedClaims(t, token)
		assert.Equal(t, string(auth.RoleStudent), claims.UserRole)
		assert.Empty(t, claims.Resources)
	})

	t.Run("Login blocked for suspended account", func(t *testing.T) {
		identity := activeStudent()
		identity.status = auth.UserStatusSuspended
		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		assert.ErrorIs(t, err, auth.ErrUserSuspended)
		assert.Empty(t, token)
	})

	t.Run("Login blocked for rejected account", func(t *testing.T) {
		identity := activeStudent()
		identity.status = auth.UserStatusRejected
		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		assert.ErrorIs(t, err, auth.ErrUserRejected)
		assert.Empty(t, token)
	})
}

func TestImpersonate(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig())

	t.Run("Successful impersonation", func(t *testing.T) {
		identity := activeAdmin()
		mockProvider.On("FindIdentityByIdentifier", ctx, identity.email).
			Return(identity, nil).Once()

		token, err := authenticator.Impersonate(ctx, identity.email)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims := parseIssuedClaims(t, token)
		assert.Equal(t, identity.ID(), claims.Subject())
		assert.Equal(t, "test-issuer", claims.RegisteredClaims.Issuer)
		assert.Equal(t, string(auth.RoleAdmin), claims.UserRole)
	})

	t.Run("Failed impersonation - identity not found", func(t *testing.T) {
		mockProvider.On("FindIdentityByIdentifier", ctx, "nobody@school.edu").
			Return(nil, auth.ErrIdentityNotFound).Once()

		token, err := authenticator.Impersonate(ctx, "nobody@school.edu")
		assert.Error(t, err)
		assert.Empty(t, token)
		assert.Contains(t, err.Error(), "identity not found")
	})

	t.Run("Impersonation blocked for suspended account", func(t *testing.T) {
		identity := activeAdmin()
		identity.status = auth.UserStatusSuspended
		mockProvider.On("FindIdentityByIdentifier", ctx, identity.email).
			Return(identity, nil).Once()

		token, err := authenticator.Impersonate(ctx, identity.email)
		assert.ErrorIs(t, err, auth.ErrUserSuspended)
		assert.Empty(t, token)
	})
}

func TestSessionFromToken(t *testing.T) {
	mockProvider := new(MockIdentityProvider)
	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig())

	now := time.Now()
	userID := uuid.New().String()

	mint := func(iat, exp time.Time) string {
		claims := &auth.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID,
				Audience:  []string{"test:audience"},
				Issuer:    "test-issuer",
				IssuedAt:  jwt.NewNumericDate(iat),
				ExpiresAt: jwt.NewNumericDate(exp),
			},
			UID:       userID,
			UserRole:  string(auth.RoleAdmin),
			Resources: map[string]string{},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
		require.NoError(t, err)
		return signed
	}

	tokenString := mint(now, now.Add(24*time.Hour))

	t.Run("Valid token", func(t *testing.T) {
		session, err := authenticator.SessionFromToken(tokenString)
		require.NoError(t, err)
		require.NotNil(t, session)

		assert.Equal(t, userID, session.GetUserID())
		assert.Equal(t, []string{"test:audience"}, session.GetAudience())
		assert.Equal(t, "test-issuer", session.GetIssuer())
		assert.Equal(t, string(auth.RoleAdmin), session.GetData()["role"])
	})

	t.Run("Invalid token signature", func(t *testing.T) {
		session, err := authenticator.SessionFromToken(tokenString + "tampered")
		assert.Error(t, err)
		assert.Nil(t, session)
	})

	t.Run("Expired token", func(t *testing.T) {
		expired := mint(now.Add(-48*time.Hour), now.Add(-24*time.Hour))
		session, err := authenticator.SessionFromToken(expired)
		assert.Error(t, err)
		assert.Nil(t, session)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("Role outside structured claims is dropped", func(t *testing.T) {
		// Tokens that bury the role in a free-form data field don't
		// surface it through the session.
		loose := jwt.MapClaims{
			"sub": userID,
			"aud": []string{"test:audience"},
			"iss": "test-issuer",
			"iat": jwt.NewNumericDate(now),
			"exp": jwt.NewNumericDate(now.Add(24 * time.Hour)),
			"dat": map[string]any{"role": "admin"},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, loose).SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		session, err := authenticator.SessionFromToken(signed)
		if err == nil {
			require.NotNil(t, session)
			assert.Equal(t, "", session.GetData()["role"])
		} else {
			assert.Nil(t, session)
		}
	})
}

func TestLoginActivitySink(t *testing.T) {
	ctx := context.Background()
	identity := activeStudent()

	t.Run("success event", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		sink := new(MockActivitySink)
		authenticator := auth.NewAuthenticator(provider, newMockConfig()).WithActivitySink(sink)

		provider.On("VerifyIdentity", ctx, identity.Email(), "password").
			Return(identity, nil).Once()
		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
			return evt.EventType == auth.ActivityEventLoginSuccess &&
				evt.UserID == identity.ID()
		})).Return(nil).Once()

		_, err := authenticator.Login(ctx, identity.Email(), "password")
		require.NoError(t, err)

		sink.AssertExpectations(t)
		provider.AssertExpectations(t)
	})

	t.Run("failure event", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		sink := new(MockActivitySink)
		authenticator := auth.NewAuthenticator(provider, newMockConfig()).WithActivitySink(sink)

		provider.On("VerifyIdentity", ctx, "nobody@school.edu", "password").
			Return(nil, errors.New("boom")).Once()
		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
			return evt.EventType == auth.ActivityEventLoginFailure &&
				evt.UserID == "" &&
				evt.Metadata["identifier"] == "nobody@school.edu"
		})).Return(nil).Once()

		_, err := authenticator.Login(ctx, "nobody@school.edu", "password")
		require.Error(t, err)

		sink.AssertExpectations(t)
		provider.AssertExpectations(t)
	})
}

func TestIdentityFromSession(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig())

	userID := uuid.New().String()
	now := time.Now()
	session := &auth.SessionObject{
		UserID:   userID,
		Audience: []string{"test:audience"},
		Issuer:   "test-issuer",
		IssuedAt: &now,
		Data:     map[string]any{"role": string(auth.RoleAdmin)},
	}

	t.Run("Identity found", func(t *testing.T) {
		identity := activeAdmin()
		identity.id = userID
		mockProvider.On("FindIdentityByIdentifier", ctx, userID).
			Return(identity, nil).Once()

		result, err := authenticator.IdentityFromSession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, identity.ID(), result.ID())
		assert.Equal(t, identity.Username(), result.Username())
		assert.Equal(t, identity.Email(), result.Email())
		assert.Equal(t, identity.Role(), result.Role())
	})

	t.Run("Identity not found", func(t *testing.T) {
		mockProvider.On("FindIdentityByIdentifier", ctx, userID).
			Return(nil, auth.ErrIdentityNotFound).Once()

		result, err := authenticator.IdentityFromSession(ctx, session)
		assert.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), "identity not found")
	})
}

func TestLoginWithResourceRoleProvider(t *testing.T) {
	ctx := context.Background()
	identity := activeStudent()

	t.Run("default no-op provider yields empty course roles", func(t *testing.T) {
		mockProvider := new(MockIdentityProvider)
		authenticator := auth.NewAuthenticator(mockProvider, newMockConfig())

		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		require.NoError(t, err)

		claims := parseIssuedClaims(t, token)
		assert.Equal(t, identity.ID(), claims.Subject())
		assert.Empty(t, claims.Resources)
	})

	t.Run("course grants ride in the token", func(t *testing.T) {
		mockProvider := new(MockIdentityProvider)
		mockRoleProvider := new(MockResourceRoleProvider)
		authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
			WithResourceRoleProvider(mockRoleProvider)

		courseRoles := map[string]string{
			"course-algebra":   "student",
			"course-chemistry": "student",
		}

		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()
		mockRoleProvider.On("FindResourceRoles", ctx, identity).
			Return(courseRoles, nil).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		require.NoError(t, err)

		claims := parseIssuedClaims(t, token)
		assert.Equal(t, string(auth.RoleStudent), claims.UserRole)
		assert.Equal(t, courseRoles, claims.Resources)
		mockRoleProvider.AssertExpectations(t)
	})

	t.Run("role provider error fails the login", func(t *testing.T) {
		mockProvider := new(MockIdentityProvider)
		mockRoleProvider := new(MockResourceRoleProvider)
		authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
			WithResourceRoleProvider(mockRoleProvider)

		mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
			Return(identity, nil).Once()
		mockRoleProvider.On("FindResourceRoles", ctx, identity).
			Return(nil, errors.New("grant lookup failed")).Once()

		token, err := authenticator.Login(ctx, identity.email, "password123")
		assert.Error(t, err)
		assert.Empty(t, token)
		assert.Contains(t, err.Error(), "grant lookup failed")
		mockRoleProvider.AssertExpectations(t)
	})
}

func TestImpersonateWithResourceRoleProvider(t *testing.T) {
	ctx := context.Background()
	identity := activeAdmin()

	t.Run("course roles present in impersonation token", func(t *testing.T) {
		mockProvider := new(MockIdentityProvider)
		mockRoleProvider := new(MockResourceRoleProvider)
		authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
			WithResourceRoleProvider(mockRoleProvider)

		courseRoles := map[string]string{"course-algebra": "admin"}

		mockProvider.On("FindIdentityByIdentifier", ctx, identity.email).
			Return(identity, nil).Once()
		mockRoleProvider.On("FindResourceRoles", ctx, identity).
			Return(courseRoles, nil).Once()

		token, err := authenticator.Impersonate(ctx, identity.email)
		require.NoError(t, err)

		claims := parseIssuedClaims(t, token)
		assert.Equal(t, identity.ID(), claims.Subject())
		assert.Equal(t, courseRoles, claims.Resources)
		mockRoleProvider.AssertExpectations(t)
	})

	t.Run("role provider error fails the impersonation", func(t *testing.T) {
		mockProvider := new(MockIdentityProvider)
		mockRoleProvider := new(MockResourceRoleProvider)
		authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
			WithResourceRoleProvider(mockRoleProvider)

		mockProvider.On("FindIdentityByIdentifier", ctx, identity.email).
			Return(identity, nil).Once()
		mockRoleProvider.On("FindResourceRoles", ctx, identity).
			Return(nil, errors.New("grant lookup failed")).Once()

		token, err := authenticator.Impersonate(ctx, identity.email)
		assert.Error(t, err)
		assert.Empty(t, token)
		assert.Contains(t, err.Error(), "grant lookup failed")
		mockRoleProvider.AssertExpectations(t)
	})
}

func TestClaimsDecoratorIntegration(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	identity := activeAdmin()

	mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
		Return(identity, nil).Once()

	decorator := auth.ClaimsDecoratorFunc(func(ctx context.Context, identity auth.Identity, claims *auth.JWTClaims) error {
		if claims.Metadata == nil {
			claims.Metadata = map[string]any{}
		}
		claims.Metadata["campus"] = "north"
		if claims.Resources == nil {
			claims.Resources = map[string]string{}
		}
		claims.Resources["course-biology"] = "admin"
		return nil
	})

	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
		WithClaimsDecorator(decorator)

	token, err := authenticator.Login(ctx, identity.email, "password123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsedClaims, err := authenticator.TokenService().Validate(token)
	require.NoError(t, err)

	jwtClaims, ok := parsedClaims.(*auth.JWTClaims)
	require.True(t, ok)
	assert.Equal(t, "north", jwtClaims.Metadata["campus"])
	assert.Equal(t, "admin", jwtClaims.Resources["course-biology"])

	session, err := authenticator.SessionFromToken(token)
	require.NoError(t, err)
	metadata, ok := session.GetData()["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "north", metadata["campus"])

	mockProvider.AssertExpectations(t)
}

func TestClaimsDecoratorErrorStopsLogin(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	identity := activeAdmin()

	mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
		Return(identity, nil).Once()

	expectedErr := errors.New("decorator boom")
	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
		WithClaimsDecorator(auth.ClaimsDecoratorFunc(func(context.Context, auth.Identity, *auth.JWTClaims) error {
			return expectedErr
		}))

	token, err := authenticator.Login(ctx, identity.email, "password123")
	assert.ErrorIs(t, err, expectedErr)
	assert.Empty(t, token)

	mockProvider.AssertExpectations(t)
}

func TestClaimsDecoratorImmutableGuard(t *testing.T) {
	ctx := context.Background()
	mockProvider := new(MockIdentityProvider)
	identity := activeAdmin()

	mockProvider.On("VerifyIdentity", ctx, identity.email, "password123").
		Return(identity, nil).Once()

	authenticator := auth.NewAuthenticator(mockProvider, newMockConfig()).
		WithClaimsDecorator(auth.ClaimsDecoratorFunc(func(ctx context.Context, identity auth.Identity, claims *auth.JWTClaims) error {
			claims.RegisteredClaims.Subject = "mutated"
			return nil
		}))

	token, err := authenticator.Login(ctx, identity.email, "password123")
	assert.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrImmutableClaimMutation)
	assert.Empty(t, token)

	mockProvider.AssertExpectations(t)
}
