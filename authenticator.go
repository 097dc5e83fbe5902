package auth

import (
	"context"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Auther struct {
	provider        IdentityProvider
	roleProvider    ResourceRoleProvider
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	signingKey := []byte(opts.GetSigningKey())

	return &Auther{
		provider:        provider,
		roleProvider:    &noopResourceRoleProvider{},
		signingKey:      signingKey,
		tokenExpiration: opts.GetTokenExpiration(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService: NewTokenService(
			signingKey,
			opts.GetTokenExpiration(),
			opts.GetIssuer(),
			jwt.ClaimStrings(opts.GetAudience()),
			defLogger{},
		),
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// The token service carries its own logger reference, rebuild it.
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		s.issuer,
		jwt.ClaimStrings(s.audience),
		logger,
	)
	return s
}

// WithResourceRoleProvider sets a custom ResourceRoleProvider for the Auther.
// Wire the course grant provider here so approved courses ride in the token.
func (s *Auther) WithResourceRoleProvider(provider ResourceRoleProvider) *Auther {
	s.roleProvider = provider
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return "", ErrIdentityNotFound
	}

	return s.issueSessionToken(ctx, identity, identifier, tokenIssueEvents{
		failure: ActivityEventLoginFailure,
		success: ActivityEventLoginSuccess,
		actor:   s.actorFromIdentity(identity),
		scope:   "Login",
	})
}

func (s *Auther) Impersonate(ctx context.Context, identifier string) (string, error) {
	systemActor := ActorRef{Type: "system"}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, identifier)
	if err != nil {
		s.logger.Error("Impersonate verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventImpersonationFailure, systemActor, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Impersonate identity is nil")
		s.emitAuthEvent(ctx, ActivityEventImpersonationFailure, systemActor, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return "", ErrIdentityNotFound
	}

	return s.issueSessionToken(ctx, identity, identifier, tokenIssueEvents{
		failure: ActivityEventImpersonationFailure,
		success: ActivityEventImpersonationSuccess,
		actor:   systemActor,
		scope:   "Impersonate",
	})
}

// tokenIssueEvents names the activity events and actor attribution used
// while minting a session token for a resolved identity.
type tokenIssueEvents struct {
	failure ActivityEventType
	success ActivityEventType
	actor   ActorRef
	scope   string
}

// issueSessionToken runs the shared tail of Login and Impersonate:
// status checks, course role lookup, and JWT minting, with failure
// events recorded at every exit.
func (s *Auther) issueSessionToken(ctx context.Context, identity Identity, identifier string, ev tokenIssueEvents) (string, error) {
	if status, err := s.ensureIdentityCanLogin(identity); err != nil {
		s.logger.Warn("%s blocked due to user status %s: %v", ev.scope, status, err)
		s.emitAuthEvent(ctx, ev.failure, ev.actor, identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     status,
		})
		return "", err
	}

	resourceRoles, err := s.roleProvider.FindResourceRoles(ctx, identity)
	if err != nil {
		s.logger.Error("%s failed to fetch resource roles: %v", ev.scope, err)
		s.emitAuthEvent(ctx, ev.failure, ev.actor, identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	token, err := s.generateJWT(ctx, identity, resourceRoles)
	if err != nil {
		s.emitAuthEvent(ctx, ev.failure, ev.actor, identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ev.success, ev.actor, identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return token, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())
	if err != nil {
		s.logger.Error("IdentityFromSession findidentity by identifier: %s", err)
		return nil, err
	}

	return identity, nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims: %v", err)
		return nil, err
	}

	return session, nil
}

// generateJWT builds structured claims carrying course roles, runs the
// decorator, and signs. Decorators may add claims but never rewrite the
// identity-derived ones.
func (s *Auther) generateJWT(ctx context.Context, identity Identity, resourceRoles map[string]string) (string, error) {
	claims := s.newJWTClaims(identity, resourceRoles)
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed: %v", err)
		return "", err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims: %v", err)
		return "", err
	}

	return s.tokenService.SignClaims(claims)
}

func (s *Auther) newJWTClaims(identity Identity, resourceRoles map[string]string) *JWTClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.tokenExpiration) * time.Hour)),
		},
		UID:       identity.ID(),
		Uname:     identity.Username(),
		UserRole:  identity.Role(),
		Resources: resourceRoles,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: identity.ID(), Type: "user"}
}

// ensureIdentityCanLogin blocks suspended, rejected, and archived accounts.
// Pending accounts get a token: the approval gate lives at the resource
// layer, not the login door.
func (s *Auther) ensureIdentityCanLogin(identity Identity) (UserStatus, error) {
	status, ok := identityStatus(identity)
	if !ok {
		return "", nil
	}

	if status == "" {
		status = UserStatusActive
	}

	if err := statusAuthError(status); err != nil {
		return status, err
	}

	return status, nil
}

type statusAwareIdentity interface {
	Status() UserStatus
}

func identityStatus(identity Identity) (UserStatus, bool) {
	if identity == nil {
		return "", false
	}

	if sa, ok := identity.(statusAwareIdentity); ok {
		return sa.Status(), true
	}

	return "", false
}
