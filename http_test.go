package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	auth "github.com/klasshub/go-lms-auth"
	"github.com/klasshub/go-lms-auth/middleware/jwtware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// baseHTTPConfig stubs the config calls NewHTTPAuthenticator always makes.
func baseHTTPConfig() *MockConfig {
	cfg := new(MockConfig)
	cfg.On("GetTokenExpiration").Return(24)
	cfg.On("GetExtendedTokenDuration").Return(48)
	return cfg
}

func expiredCookie(name string) func(c *router.Cookie) bool {
	return func(c *router.Cookie) bool {
		return c.Name == name && c.Value == "" && c.HTTPOnly && c.Expires.Before(time.Now())
	}
}

func TestNewHTTPAuthenticator(t *testing.T) {
	cfg := baseHTTPConfig()

	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), cfg)
	require.NoError(t, err)
	assert.NotNil(t, httpAuth)
	cfg.AssertExpectations(t)
}

func TestRouteAuthenticatorLogin(t *testing.T) {
	t.Run("sets session cookie on success", func(t *testing.T) {
		authMock := new(MockAuthenticator)
		cfg := baseHTTPConfig()
		rc := new(MockContext)

		cfg.On("GetContextKey").Return("jwt")
		authMock.On("Login", mock.Anything, "maria.santos@school.edu", "password123").
			Return("valid.jwt.token", nil)
		rc.On("Context").Return(context.Background())
		rc.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "jwt" && c.Value == "valid.jwt.token" && c.HTTPOnly
		})).Return()

		httpAuth, err := auth.NewHTTPAuthenticator(authMock, cfg)
		require.NoError(t, err)

		token, err := httpAuth.Login(rc, MockLoginPayload{
			Identifier:      "maria.santos@school.edu",
			Password:        "password123",
			ExtendedSession: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "valid.jwt.token", token)

		authMock.AssertExpectations(t)
		rc.AssertExpectations(t)
	})

	t.Run("propagates auth failure without a cookie", func(t *testing.T) {
		authMock := new(MockAuthenticator)
		cfg := baseHTTPConfig()
		rc := new(MockContext)

		wantErr := errors.New("invalid credentials")
		authMock.On("Login", mock.Anything, "maria.santos@school.edu", "wrongpass").
			Return("", wantErr)
		rc.On("Context").Return(context.Background())

		httpAuth, err := auth.NewHTTPAuthenticator(authMock, cfg)
		require.NoError(t, err)

		_, err = httpAuth.Login(rc, MockLoginPayload{
			Identifier: "maria.santos@school.edu",
			Password:   "wrongpass",
		})
		assert.ErrorIs(t, err, wantErr)

		authMock.AssertExpectations(t)
		rc.AssertExpectations(t)
	})
}

func TestRouteAuthenticatorLogout(t *testing.T) {
	cfg := baseHTTPConfig()
	rc := new(MockContext)

	cfg.On("GetContextKey").Return("jwt")
	rc.On("Cookie", mock.MatchedBy(expiredCookie("jwt"))).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), cfg)
	require.NoError(t, err)

	httpAuth.Logout(rc)

	cfg.AssertExpectations(t)
	rc.AssertExpectations(t)
}

func TestRouteAuthenticatorProtectedRoute(t *testing.T) {
	cfg := baseHTTPConfig()
	cfg.On("GetSigningKey").Return("test-signing-key")
	cfg.On("GetSigningMethod").Return("HS256")
	cfg.On("GetAuthScheme").Return("Bearer")
	cfg.On("GetContextKey").Return("jwt")
	cfg.On("GetTokenLookup").Return("header:Authorization")
	cfg.On("GetIssuer").Return("test-issuer")
	cfg.On("GetAudience").Return([]string{"test:audience"})

	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), cfg)
	require.NoError(t, err)

	onError := func(ctx router.Context, err error) error {
		return ctx.Status(http.StatusUnauthorized).SendString("Unauthorized")
	}

	middleware := httpAuth.ProtectedRoute(cfg, onError)
	assert.IsType(t, router.ToMiddleware(func(c router.Context) error { return nil }), middleware)

	cfg.AssertExpectations(t)
}

func TestRouteAuthenticatorRedirects(t *testing.T) {
	cfg := baseHTTPConfig()
	cfg.On("GetRejectedRouteKey").Return("rejected_route").Times(3)
	cfg.On("GetRejectedRouteDefault").Return("/login")

	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), cfg)
	require.NoError(t, err)

	t.Run("SetRedirect stores the original URL", func(t *testing.T) {
		rc := new(MockContext)
		rc.On("OriginalURL").Return("/courses/algebra")
		rc.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "/courses/algebra" && c.HTTPOnly
		})).Return()

		httpAuth.SetRedirect(rc)
		rc.AssertExpectations(t)
	})

	t.Run("GetRedirect consumes the cookie", func(t *testing.T) {
		rc := new(MockContext)
		rc.On("Cookies", "rejected_route").Return("/courses/algebra")
		rc.On("Cookie", mock.MatchedBy(expiredCookie("rejected_route"))).Return()

		assert.Equal(t, "/courses/algebra", httpAuth.GetRedirect(rc, "/home"))
		rc.AssertExpectations(t)
	})

	t.Run("GetRedirectOrDefault falls back to the configured route", func(t *testing.T) {
		rc := new(MockContext)
		rc.On("Referer").Return("/some-referer")
		rc.On("Cookies", "rejected_route", "/some-referer").Return("")
		rc.On("Cookie", mock.MatchedBy(expiredCookie("rejected_route"))).Return()

		assert.Equal(t, "/login", httpAuth.GetRedirectOrDefault(rc))
		rc.AssertExpectations(t)
	})

	cfg.AssertExpectations(t)
}

func TestRouteAuthenticatorImpersonate(t *testing.T) {
	authMock := new(MockAuthenticator)
	cfg := baseHTTPConfig()
	rc := new(MockContext)

	cfg.On("GetContextKey").Return("jwt")
	authMock.On("Impersonate", mock.Anything, "registrar@school.edu").
		Return("registrar.jwt.token", nil)
	rc.On("Context").Return(context.Background())
	rc.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "jwt" && c.Value == "registrar.jwt.token" && c.HTTPOnly
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(authMock, cfg)
	require.NoError(t, err)

	require.NoError(t, httpAuth.Impersonate(rc, "registrar@school.edu"))

	authMock.AssertExpectations(t)
	cfg.AssertExpectations(t)
	rc.AssertExpectations(t)
}

func TestMakeClientRouteAuthErrorHandler(t *testing.T) {
	cfg := baseHTTPConfig()
	httpAuth, err := auth.NewHTTPAuthenticator(new(MockAuthenticator), cfg)
	require.NoError(t, err)

	t.Run("optional routes continue on malformed tokens", func(t *testing.T) {
		rc := new(MockContext)

		handler := httpAuth.MakeClientRouteAuthErrorHandler(true)
		require.NoError(t, handler(rc, jwtware.ErrJWTMissingOrMalformed))
		assert.True(t, rc.NextCalled, "next handler should run for optional routes")

		rc.AssertExpectations(t)
	})

	t.Run("required routes hit the auth error handler", func(t *testing.T) {
		rc := new(MockContext)

		var handled bool
		orig := httpAuth.AuthErrorHandler
		httpAuth.AuthErrorHandler = func(c router.Context, err error) error {
			handled = true
			return c.Redirect("/login", http.StatusSeeOther)
		}
		defer func() { httpAuth.AuthErrorHandler = orig }()

		rc.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

		handler := httpAuth.MakeClientRouteAuthErrorHandler(false)
		require.NoError(t, handler(rc, jwtware.ErrJWTMissingOrMalformed))
		assert.True(t, handled)

		rc.AssertExpectations(t)
	})

	cfg.AssertExpectations(t)
}
