package services

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor for stored credentials.
const PasswordCost = 10

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher precomputes the hash VerifyNothing compares against.
func NewPasswordHasher() *PasswordHasher {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), PasswordCost)
	if err != nil {
		panic(fmt.Sprintf("failed to prepare dummy password hash: %v", err))
	}
	return &PasswordHasher{cost: PasswordCost, dummy: dummy}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A mismatch is not an error.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyNothing burns the same bcrypt time as Verify for a lookup that found
// no user, so login latency does not reveal whether a username exists.
func (h *PasswordHasher) VerifyNothing(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plaintext))
}
