package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleStudent can view the courses they were granted
	RoleStudent UserRole = "student"
	// RoleAdmin manages accounts, approvals, and course grants
	RoleAdmin UserRole = "admin"
)

// UserStatus tracks the account lifecycle
type UserStatus string

const (
	// UserStatusPending is the state every new account lands in until an
	// admin approves it
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is an approved account
	UserStatusActive UserStatus = "active"
	// UserStatusRejected is an account an admin declined to approve
	UserStatusRejected UserStatus = "rejected"
	// UserStatusSuspended is a previously active account locked by an admin
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusArchived is a terminal state, accounts are never hard deleted
	UserStatusArchived UserStatus = "archived"
)

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string         `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	ProfilePicture string         `bun:"profile_picture" json:"profile_picture,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	EmailValidated bool           `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Status         UserStatus     `bun:"status,notnull" json:"status,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	SuspendedAt    *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	ApprovedAt     *time.Time     `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status column for rows created before the
// lifecycle migration ran.
func (u *User) EnsureStatus() {
	if u == nil {
		return
	}
	if u.Status == "" {
		u.Status = UserStatusPending
	}
}

// IsApproved reports whether the approval gate has let the account in.
func (u *User) IsApproved() bool {
	if u == nil {
		return false
	}
	return u.Status == UserStatusActive
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// VerificationCode is a short-lived one-time code proving email ownership.
// At most one live (unconsumed, unexpired) code exists per user; issuing
// a new one supersedes the prior.
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Code          string     `bun:"code,notnull" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Live reports whether the code can still be redeemed at the given time.
func (v *VerificationCode) Live(now time.Time) bool {
	if v == nil || v.ConsumedAt != nil {
		return false
	}
	return now.Before(v.ExpiresAt)
}

// CourseGrant records a single course an approved account may access.
// An approval always replaces the complete grant set, so the rows for a
// user mirror the most recent approval exactly.
type CourseGrant struct {
	bun.BaseModel `bun:"table:course_grants,alias:cg"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CourseID      string     `bun:"course_id,notnull" json:"course_id,omitempty"`
	GrantedBy     string     `bun:"granted_by" json:"granted_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
