package social

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-router"
	auth "github.com/klasshub/go-lms-auth"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPConfig configures the HTTP controller. Zero values get sensible
// defaults in NewHTTPController.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth/social")
	PathPrefix string

	// SessionContextKey is the router locals key holding the JWT (default: "user")
	SessionContextKey string

	// CookieName for storing the JWT (default: SessionContextKey)
	CookieName string

	CookieSecure   bool
	CookieHTTPOnly bool

	// CookieSameSite sets the SameSite attribute (e.g. "Lax", "Strict", "None")
	CookieSameSite string

	// SuccessRedirect is the default redirect after successful auth
	SuccessRedirect string

	// ErrorRedirect is the redirect for auth errors
	ErrorRedirect string

	// ErrorHandler overrides the default redirect-with-error behavior
	ErrorHandler func(ctx router.Context, err error) error
}

// HTTPController exposes the federated-login flows over HTTP.
type HTTPController struct {
	authenticator *SocialAuthenticator
	config        HTTPConfig
}

// NewHTTPController builds a controller around the given authenticator.
func NewHTTPController(auth *SocialAuthenticator, cfg HTTPConfig) *HTTPController {
	defaults := []struct {
		field *string
		value string
	}{
		{&cfg.PathPrefix, "/auth/social"},
		{&cfg.SessionContextKey, "user"},
		{&cfg.CookieSameSite, "Lax"},
		{&cfg.SuccessRedirect, "/"},
		{&cfg.ErrorRedirect, "/login?error=auth_failed"},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
	if cfg.CookieName == "" {
		cfg.CookieName = cfg.SessionContextKey
	}

	return &HTTPController{authenticator: auth, config: cfg}
}

// RegisterRoutes mounts the controller's routes on the group. The
// catch-all ":provider" route goes last so the static paths win.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Get("/providers", c.ListProviders)
	group.Get("/accounts", c.ListAccounts)
	group.Get("/:provider/callback", c.Callback)
	group.Post("/:provider/link", c.LinkAccount)
	group.Delete("/:provider", c.UnlinkAccount)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns the providers configured on the authenticator.
func (c *HTTPController) ListProviders(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{
		"providers": c.authenticator.ListProviders(),
	})
}

// BeginAuth starts the OAuth flow and redirects to the provider.
func (c *HTTPController) BeginAuth(ctx router.Context) error {
	action := ctx.Query("action")
	if action == "" {
		action = ActionLogin
	}

	redirectURL := ctx.Query("redirect_url")
	if redirectURL == "" {
		redirectURL = c.config.SuccessRedirect
	}

	opts := []BeginAuthOption{ForAction(action), WithRedirectURL(redirectURL)}
	if action == ActionLink {
		userID := c.sessionUserID(ctx)
		if userID == "" {
			return unauthorized(ctx, "authentication required for linking")
		}
		opts = append(opts, ForLinkingUser(userID))
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), ctx.Param("provider"), opts...)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow after the provider redirects back.
func (c *HTTPController) Callback(ctx router.Context) error {
	if errCode := ctx.Query("error"); errCode != "" {
		target := appendQueryParam(c.config.ErrorRedirect, "oauth_error", errCode)
		if desc := ctx.Query("error_description"); desc != "" {
			target = appendQueryParam(target, "desc", desc)
		}
		return ctx.Redirect(target, http.StatusTemporaryRedirect)
	}

	code, state := ctx.Query("code"), ctx.Query("state")
	if code == "" || state == "" {
		target := appendQueryParam(c.config.ErrorRedirect, "error", "missing_params")
		return ctx.Redirect(target, http.StatusTemporaryRedirect)
	}

	result, err := c.authenticator.CompleteAuth(ctx.Context(), ctx.Param("provider"), code, state)
	if err != nil {
		return c.handleError(ctx, err)
	}

	c.setAuthCookie(ctx, result.Token)

	target := result.RedirectURL
	if target == "" {
		target = c.config.SuccessRedirect
	}
	if result.IsNewUser {
		target = appendQueryParam(target, "new_user", "true")
	}
	// Lets the frontend route unapproved accounts to a waiting screen.
	if result.PendingApproval {
		target = appendQueryParam(target, "pending_approval", "true")
	}
	return ctx.Redirect(target, http.StatusTemporaryRedirect)
}

// LinkAccount starts a linking flow for the logged-in user and returns
// the provider redirect as JSON rather than redirecting.
func (c *HTTPController) LinkAccount(ctx router.Context) error {
	userID := c.sessionUserID(ctx)
	if userID == "" {
		return unauthorized(ctx, "authentication required")
	}

	redirect, err := c.authenticator.BeginAuth(ctx.Context(), ctx.Param("provider"), ForLinkingUser(userID))
	if err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]string{"redirect_url": redirect.URL})
}

// UnlinkAccount removes a linked provider account, refusing to remove
// the user's only auth method.
func (c *HTTPController) UnlinkAccount(ctx router.Context) error {
	userID := c.sessionUserID(ctx)
	if userID == "" {
		return unauthorized(ctx, "authentication required")
	}

	accounts, err := c.authenticator.accountRepo.FindByUserID(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}
	if len(accounts) <= 1 {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": ErrLastAuthMethod.Error(),
		})
	}

	if err := c.authenticator.accountRepo.DeleteByUserAndProvider(ctx.Context(), userID, ctx.Param("provider")); err != nil {
		return c.handleError(ctx, err)
	}
	return ctx.JSON(router.StatusOK, map[string]string{"status": "unlinked"})
}

// ListAccounts returns the current user's linked accounts. Tokens and
// provider internals stay out of the payload.
func (c *HTTPController) ListAccounts(ctx router.Context) error {
	userID := c.sessionUserID(ctx)
	if userID == "" {
		return unauthorized(ctx, "authentication required")
	}

	accounts, err := c.authenticator.accountRepo.FindByUserID(ctx.Context(), userID)
	if err != nil {
		return c.handleError(ctx, err)
	}

	payload := make([]map[string]any, 0, len(accounts))
	for _, acc := range accounts {
		payload = append(payload, map[string]any{
			"id":               acc.ID,
			"provider":         acc.Provider,
			"provider_user_id": acc.ProviderUserID,
			"email":            acc.Email,
			"name":             acc.Name,
			"avatar_url":       acc.AvatarURL,
			"created_at":       acc.CreatedAt,
		})
	}
	return ctx.JSON(router.StatusOK, map[string]any{"accounts": payload})
}

func (c *HTTPController) sessionUserID(ctx router.Context) string {
	session, err := auth.GetRouterSession(ctx, c.config.SessionContextKey)
	if err != nil {
		return ""
	}
	return session.GetUserID()
}

func (c *HTTPController) setAuthCookie(ctx router.Context, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     c.config.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   c.config.CookieSecure,
		HTTPOnly: c.config.CookieHTTPOnly,
		SameSite: c.config.CookieSameSite,
	})
}

func (c *HTTPController) handleError(ctx router.Context, err error) error {
	if c.config.ErrorHandler != nil {
		return c.config.ErrorHandler(ctx, err)
	}
	return ctx.Redirect(appendQueryParam(c.config.ErrorRedirect, "error", err.Error()), http.StatusTemporaryRedirect)
}

func unauthorized(ctx router.Context, msg string) error {
	return ctx.JSON(router.StatusUnauthorized, map[string]string{"error": msg})
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		q := parsed.Query()
		q.Set(key, value)
		parsed.RawQuery = q.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}
