package auth

// UserIdentity adapts a stored User record to the Identity interface the
// token paths consume.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser wraps a user record; a nil user yields a nil Identity.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) record() *User {
	if u.user == nil {
		return &User{}
	}
	return u.user
}

func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) Username() string { return u.record().Username }

func (u UserIdentity) Email() string { return u.record().Email }

func (u UserIdentity) Role() string { return string(u.record().Role) }

// Status exposes the lifecycle status so login can apply status gating.
func (u UserIdentity) Status() UserStatus { return u.record().Status }

// IsApproved reports whether the account cleared the admin approval gate.
func (u UserIdentity) IsApproved() bool { return u.record().IsApproved() }

// EmailVerified reports whether the account completed the email code challenge.
func (u UserIdentity) EmailVerified() bool { return u.record().EmailValidated }
