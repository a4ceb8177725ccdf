package etl

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a plain password into the stored credential.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// BcryptHasher hashes with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OneTimePassword generates the password of a user row that has none.
func OneTimePassword() string {
	return uuid.NewString()
}
