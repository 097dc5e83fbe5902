package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

type Middleware interface {
	Impersonate(c router.Context, identifier string) error
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}

	// The JWT middleware stores typed claims. Raw tokens show up when the
	// caller wired a bare parser instead.
	if claims, ok := raw.(AuthClaims); ok {
		return sessionFromAuthClaims(claims)
	}

	token, ok := raw.(*jwt.Token)
	if token == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

// RegisterAuthRoutes wires the JSON auth endpoints. The approval route is
// registered behind the JWT middleware and an admin check.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.Register).
		SetName("auth.register")

	app.Post(controller.Routes.Login, controller.Login).
		SetName("auth.login")

	app.Post(controller.Routes.Logout, controller.Logout).
		SetName("auth.logout")

	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmail).
		SetName("auth.verify-email")

	app.Post(controller.Routes.ResendCode, controller.ResendCode).
		SetName("auth.resend-otp")

	app.Post(controller.Routes.CheckSetup, controller.CheckSetup).
		SetName("auth.check-setup")

	app.Post(controller.Routes.CompleteSetup, controller.CompleteSetup).
		SetName("auth.complete-setup")

	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.authErrorHandler(),
	)

	app.Put(controller.Routes.Approval,
		protected(controller.requireAdmin(controller.Approval)),
	).SetName("users.approval")
}

type AuthControllerRoutes struct {
	Register      string
	Login         string
	Logout        string
	VerifyEmail   string
	ResendCode    string
	CheckSetup    string
	CompleteSetup string
	Approval      string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Verifier     EmailVerifier
	Config       Config
	FeatureGate  FeatureGate
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Register:      "/auth/register",
			Login:         "/auth/login",
			Logout:        "/auth/logout",
			VerifyEmail:   "/auth/verify-email",
			ResendCode:    "/auth/resend-otp",
			CheckSetup:    "/auth/check-setup",
			CompleteSetup: "/auth/complete-setup",
			Approval:      "/users/:id/approval",
		},
	}
	c.ErrorHandler = c.writeError

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	if c.Config == nil {
		panic("Missing Config in auth controller...")
	}

	return c
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuther(auther HTTPAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Config = cfg
		return c
	}
}

func WithControllerFeatureGate(featureGate FeatureGate) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.FeatureGate = featureGate
		return c
	}
}

func WithControllerVerifier(verifier EmailVerifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Verifier = verifier
		return c
	}
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the remember flag
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	token, err := a.Auther.Login(ctx, payload)
	if err != nil {
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"token": token,
	})
}

func (a *AuthController) Logout(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.JSON(router.StatusOK, map[string]any{
		"logged_out": true,
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(3, 100)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	var created *User
	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		OnResponse: func(u *User) {
			created = u
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Verifier)
	if a.FeatureGate != nil {
		registerUser = registerUser.WithFeatureGate(a.FeatureGate)
	}

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %v", err)
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, map[string]any{
		"id":     created.ID.String(),
		"status": created.Status,
	})
}

// VerifyEmailPayload carries the one-time code challenge answer
type VerifyEmailPayload struct {
	Email string `form:"email" json:"email"`
	Code  string `form:"code" json:"code"`
}

func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	payload := new(VerifyEmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), payload.Email)
	if err != nil {
		// do not disclose whether the email exists
		if goerrors.IsNotFound(err) {
			return a.writeError(ctx, ErrCodeInvalid)
		}
		return a.writeError(ctx, err)
	}

	if err := a.Verifier.Verify(ctx.Context(), user, payload.Code); err != nil {
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"verified": true,
	})
}

// ResendCodePayload asks for a fresh verification code
type ResendCodePayload struct {
	Email string `form:"email" json:"email"`
}

func (r ResendCodePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ResendCode(ctx router.Context) error {
	payload := new(ResendCodePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), payload.Email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// respond as if sent, unknown emails get no signal
			return ctx.JSON(router.StatusAccepted, map[string]any{"sent": true})
		}
		return a.writeError(ctx, err)
	}

	if _, err := a.Verifier.Resend(ctx.Context(), user); err != nil {
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]any{
		"sent": true,
	})
}

// CheckSetupPayload asks whether an email finished credential setup
type CheckSetupPayload struct {
	Email string `form:"email" json:"email"`
}

func (r CheckSetupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) CheckSetup(ctx router.Context) error {
	payload := new(CheckSetupPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	var res *CompleteSetupResponse
	req := CheckSetupMessage{
		Email: payload.Email,
		OnResponse: func(r *CompleteSetupResponse) {
			res = r
		},
	}

	checkSetup := NewCheckSetupHandler(a.Repo)
	if err := checkSetup.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("check setup error: %v", err)
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, res)
}

// CompleteSetupPayload finishes setup for provider-bridged accounts
type CompleteSetupPayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r CompleteSetupPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) CompleteSetup(ctx router.Context) error {
	payload := new(CompleteSetupPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.writeValidationError(ctx, err)
	}

	var user *User
	req := CompleteSetupMessage{
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		OnResponse: func(u *User) {
			user = u
		},
	}

	completeSetup := NewCompleteSetupHandler(a.Repo)
	if err := completeSetup.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("complete setup error: %v", err)
		return a.writeError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"id":     user.ID.String(),
		"status": user.Status,
	})
}

// ApprovalPayload carries an admin's decision for a pending account
type ApprovalPayload struct {
	Approve   bool     `form:"approve" json:"approve"`
	CourseIDs []string `form:"course_ids" json:"course_ids"`
	Reason    string   `form:"reason" json:"reason"`
}

func (a *AuthController) Approval(ctx router.Context) error {
	userID := ctx.Param("id", "")
	payload := new(ApprovalPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.writeBindError(ctx, err)
	}

	actorID := ""
	if claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey()); ok {
		actorID = claims.UserID()
	}

	var res *ApproveAccountResponse
	req := ApproveAccountMessage{
		UserID:    userID,
		Approve:   payload.Approve,
		CourseIDs: payload.CourseIDs,
		Reason:    payload.Reason,
		ActorID:   actorID,
		OnResponse: func(r *ApproveAccountResponse) {
			res = r
		},
	}

	approve := NewApproveAccountHandler(a.Repo)
	if err := approve.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("account approval error: %v", err)
		return a.writeError(ctx, err)
	}

	courseIDs := make([]string, 0, len(res.Grants))
	for _, g := range res.Grants {
		courseIDs = append(courseIDs, g.CourseID)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"id":         res.User.ID.String(),
		"status":     res.User.Status,
		"course_ids": courseIDs,
	})
}

func (a *AuthController) requireAdmin(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx router.Context) error {
		claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey())
		if !ok {
			return a.writeError(ctx, ErrUnableToFindSession)
		}

		if !claims.HasRole(string(RoleAdmin)) {
			return a.writeError(ctx, goerrors.New("admin role required", goerrors.CategoryAuthz).
				WithTextCode("ADMIN_REQUIRED").
				WithCode(goerrors.CodeForbidden))
		}

		return next(ctx)
	}
}

func (a *AuthController) authErrorHandler() func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		if IsTokenExpiredError(err) {
			return a.writeError(ctx, ErrTokenExpired)
		}
		if IsMalformedError(err) {
			return a.writeError(ctx, ErrTokenMalformed)
		}
		return a.writeError(ctx, goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
			WithCode(goerrors.CodeUnauthorized))
	}
}

func (a *AuthController) writeBindError(ctx router.Context, err error) error {
	a.Logger.Error("payload bind error: %v", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":   "Failed to parse request body",
			"text_code": "INVALID_BODY",
		},
	})
}

func (a *AuthController) writeValidationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error": map[string]any{
			"message":   "Validation failed",
			"text_code": "VALIDATION",
			"fields":    FormatValidationErrorToMap(err),
		},
	})
}

func (a *AuthController) writeError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = router.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error": map[string]any{
			"message":   richErr.Message,
			"text_code": richErr.TextCode,
			"category":  richErr.Category,
		},
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for JSON responses.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
