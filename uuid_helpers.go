package auth

import "github.com/google/uuid"

// HasUserUUID reports whether Session.GetUserUUID will succeed.
func HasUserUUID(session Session) bool {
	if session == nil {
		return false
	}
	_, err := session.GetUserUUID()
	return err == nil
}

func newTokenID() string {
	return uuid.NewString()
}
