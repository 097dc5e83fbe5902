//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race-enabled builds hash at the library default cost, otherwise the
// bcrypt work factor dominates test wall time.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
