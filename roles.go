package auth

// RoleValidator defines the interface for role-based access control validation
type RoleValidator interface {
	// CanRead checks if the role can read a specific resource
	CanRead(resource string) bool

	// CanEdit checks if the role can edit a specific resource
	CanEdit(resource string) bool

	// CanCreate checks if the role can create a specific resource
	CanCreate(resource string) bool

	// CanDelete checks if the role can delete a specific resource
	CanDelete(resource string) bool

	// HasRole checks if the user has a specific role
	HasRole(role string) bool

	// IsAtLeast checks if the user's role is at least the minimum required role
	IsAtLeast(minRole UserRole) bool
}

// roleLevels orders roles by privilege; unknown roles rank below everything.
var roleLevels = map[UserRole]int{
	RoleStudent: 0,
	RoleAdmin:   1,
}

// ParseRole converts a raw string into a UserRole, reporting validity
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(raw)
	return role, role.IsValid()
}

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// CanRead checks if this role can read resources
func (r UserRole) CanRead() bool {
	return r.IsValid()
}

// CanEdit checks if this role can edit resources
func (r UserRole) CanEdit() bool {
	return r == RoleAdmin
}

// CanCreate checks if this role can create resources
func (r UserRole) CanCreate() bool {
	return r == RoleAdmin
}

// CanDelete checks if this role can delete resources
func (r UserRole) CanDelete() bool {
	return r == RoleAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	level, ok := roleLevels[r]
	if !ok {
		return false
	}
	minLevel, ok := roleLevels[minRole]
	if !ok {
		return false
	}
	return level >= minLevel
}
