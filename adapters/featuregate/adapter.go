package lmsauthadapter

import (
	"context"
	"sort"

	"github.com/goliatone/go-featuregate/gate"
	auth "github.com/klasshub/go-lms-auth"
)

const defaultActorRefType = "user"

// ActorExtractor extracts an auth.ActorContext from context.
type ActorExtractor func(context.Context) (*auth.ActorContext, bool)

// RoleMapper builds role identifiers from ActorContext.
type RoleMapper func(actor *auth.ActorContext) []string

// PermMapper builds permission identifiers from ActorContext.
type PermMapper func(actor *auth.ActorContext) []string

// PermissionFormatter formats a course/role pair into a permission string.
type PermissionFormatter func(courseID, role string) string

// Option customizes ClaimsProvider behavior.
type Option func(*ClaimsProvider)

// ClaimsProvider derives feature claims from the authenticated actor so the
// gate can scope decisions like signup availability per role or course.
type ClaimsProvider struct {
	extractor     ActorExtractor
	roleMapper    RoleMapper
	permMapper    PermMapper
	permFormatter PermissionFormatter
}

var _ gate.ClaimsProvider = (*ClaimsProvider)(nil)
var _ gate.PermissionProvider = (*PermissionProvider)(nil)

// NewClaimsProvider builds a claims provider using the default actor context extractor.
func NewClaimsProvider(opts ...Option) *ClaimsProvider {
	provider := &ClaimsProvider{}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	provider.ensureDefaults()
	return provider
}

func (p *ClaimsProvider) ensureDefaults() {
	if p.extractor == nil {
		p.extractor = auth.GetActorContext
	}
	if p.permFormatter == nil {
		p.permFormatter = defaultPermissionFormatter
	}
	if p.roleMapper == nil {
		p.roleMapper = defaultRoleMapper
	}
	if p.permMapper == nil {
		formatter := p.permFormatter
		p.permMapper = func(actor *auth.ActorContext) []string {
			return coursePermissions(actor, formatter)
		}
	}
}

// WithActorExtractor overrides the actor context extractor.
func WithActorExtractor(extractor ActorExtractor) Option {
	return func(provider *ClaimsProvider) {
		if provider != nil {
			provider.extractor = extractor
		}
	}
}

// WithRoleMapper overrides the default role mapper.
func WithRoleMapper(mapper RoleMapper) Option {
	return func(provider *ClaimsProvider) {
		if provider != nil {
			provider.roleMapper = mapper
		}
	}
}

// WithPermMapper overrides the default permission mapper.
func WithPermMapper(mapper PermMapper) Option {
	return func(provider *ClaimsProvider) {
		if provider != nil {
			provider.permMapper = mapper
		}
	}
}

// WithPermissionFormatter customizes the course/role permission formatter.
func WithPermissionFormatter(format PermissionFormatter) Option {
	return func(provider *ClaimsProvider) {
		if provider != nil {
			provider.permFormatter = format
		}
	}
}

// ClaimsFromContext implements gate.ClaimsProvider.
func (p *ClaimsProvider) ClaimsFromContext(ctx context.Context) (gate.ActorClaims, error) {
	if p == nil || p.extractor == nil {
		return gate.ActorClaims{}, nil
	}
	actor, ok := p.extractor(ctx)
	if !ok || actor == nil {
		return gate.ActorClaims{}, nil
	}
	return claimsFromActor(actor, p.roleMapper, p.permMapper), nil
}

// ClaimsFromActor builds ActorClaims from an auth.ActorContext using defaults.
func ClaimsFromActor(actor *auth.ActorContext) gate.ActorClaims {
	return claimsFromActor(actor, defaultRoleMapper, func(a *auth.ActorContext) []string {
		return coursePermissions(a, defaultPermissionFormatter)
	})
}

func claimsFromActor(actor *auth.ActorContext, roleMapper RoleMapper, permMapper PermMapper) gate.ActorClaims {
	if actor == nil {
		return gate.ActorClaims{}
	}
	claims := gate.ActorClaims{SubjectID: actor.ActorID}
	if roleMapper != nil {
		claims.Roles = roleMapper(actor)
	}
	if permMapper != nil {
		claims.Perms = permMapper(actor)
	}
	return claims
}

func defaultRoleMapper(actor *auth.ActorContext) []string {
	if actor == nil || actor.Role == "" {
		return nil
	}
	return []string{actor.Role}
}

// coursePermissions renders the actor's course grants as permission strings,
// sorted by course so output order is stable.
func coursePermissions(actor *auth.ActorContext, format PermissionFormatter) []string {
	if actor == nil || len(actor.ResourceRoles) == 0 {
		return nil
	}
	if format == nil {
		format = defaultPermissionFormatter
	}

	courseIDs := make([]string, 0, len(actor.ResourceRoles))
	for courseID := range actor.ResourceRoles {
		courseIDs = append(courseIDs, courseID)
	}
	sort.Strings(courseIDs)

	perms := make([]string, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		if role := actor.ResourceRoles[courseID]; role != "" {
			perms = append(perms, format(courseID, role))
		}
	}
	if len(perms) == 0 {
		return nil
	}
	return perms
}

func defaultPermissionFormatter(courseID, role string) string {
	return "course:" + courseID + ":" + role
}

// ClaimsExtractor returns actor context to derive permissions.
type ClaimsExtractor func(context.Context) (*auth.ActorContext, bool)

// PermConflictResolver combines claims perms with derived perms.
type PermConflictResolver func(existing, derived []string) []string

// PermOption customizes permission provider behavior.
type PermOption func(*PermissionProvider)

// PermissionProvider derives permissions from claims and actor context.
type PermissionProvider struct {
	extractor        ClaimsExtractor
	conflictResolver PermConflictResolver
}

// NewPermissionProvider builds a permission provider using the default actor context extractor.
func NewPermissionProvider(opts ...PermOption) *PermissionProvider {
	provider := &PermissionProvider{}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	if provider.extractor == nil {
		provider.extractor = auth.GetActorContext
	}
	if provider.conflictResolver == nil {
		provider.conflictResolver = mergePerms
	}
	return provider
}

// WithClaimsExtractor overrides the claims extractor used to derive permissions.
func WithClaimsExtractor(extractor ClaimsExtractor) PermOption {
	return func(provider *PermissionProvider) {
		if provider != nil {
			provider.extractor = extractor
		}
	}
}

// WithPermConflictResolver overrides how derived permissions are merged.
func WithPermConflictResolver(resolver PermConflictResolver) PermOption {
	return func(provider *PermissionProvider) {
		if provider != nil {
			provider.conflictResolver = resolver
		}
	}
}

// Permissions implements gate.PermissionProvider.
func (p *PermissionProvider) Permissions(ctx context.Context, claims gate.ActorClaims) ([]string, error) {
	if p == nil {
		return claims.Perms, nil
	}

	var derived []string
	if p.extractor != nil {
		if actor, ok := p.extractor(ctx); ok && actor != nil {
			derived = coursePermissions(actor, defaultPermissionFormatter)
		}
	}

	resolve := p.conflictResolver
	if resolve == nil {
		resolve = mergePerms
	}
	return resolve(claims.Perms, derived), nil
}

func mergePerms(existing, derived []string) []string {
	if len(existing) == 0 && len(derived) == 0 {
		return nil
	}
	merged := make([]string, 0, len(existing)+len(derived))
	merged = append(merged, existing...)
	return append(merged, derived...)
}

// ActorRefFromActor builds an ActorRef from an auth.ActorContext.
func ActorRefFromActor(actor *auth.ActorContext) gate.ActorRef {
	if actor == nil {
		return gate.ActorRef{}
	}
	return gate.ActorRef{
		ID:   actor.ActorID,
		Type: defaultActorRefType,
		Name: actor.Username,
	}
}

// ActorRefFromContext extracts an ActorRef from context.
func ActorRefFromContext(ctx context.Context) (gate.ActorRef, bool) {
	actor, ok := auth.GetActorContext(ctx)
	if !ok || actor == nil {
		return gate.ActorRef{}, false
	}
	return ActorRefFromActor(actor), true
}
