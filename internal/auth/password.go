package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoPasswordHash is returned when no hash is configured.
var ErrNoPasswordHash = errors.New("password hash is empty")

// Verifier checks candidate passwords against a bcrypt hash.
type Verifier struct {
	hash []byte
}

// NewVerifier validates the bcrypt hash and returns a Verifier for it.
func NewVerifier(hash string) (*Verifier, error) {
	if hash == "" {
		return nil, ErrNoPasswordHash
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, err
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify reports whether candidate matches the configured hash.
func (v *Verifier) Verify(candidate string) bool {
	if v == nil || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(candidate)) == nil
}

// HashPassword produces a bcrypt hash suitable for COFFEE_PASSWORD_HASH.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
