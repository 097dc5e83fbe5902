package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash from the given cleartext password.
// Empty passwords are rejected before hashing since bcrypt would happily
// hash them.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePasswordAndHash checks the cleartext password against a stored
// bcrypt hash, returning ErrMismatchedHashAndPassword on mismatch.
func ComparePasswordAndHash(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatchedHashAndPassword
	}
	return err
}

// RandomPasswordHash produces a hash of a throwaway random password, used
// to fill the password column for accounts created through OAuth signup.
func RandomPasswordHash() string {
	for {
		if h, err := HashPassword(uuid.New().String()); err == nil {
			return h
		}
	}
}
