package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced by the auth service before hashing.
const MinPasswordLength = 8

// DefaultPasswordCost is the bcrypt cost for newly hashed passwords. Stored
// hashes are self-describing, so the cost can be raised without invalidating
// existing ones.
const DefaultPasswordCost = bcrypt.DefaultCost

// HashPassword hashes a password with bcrypt. The returned string carries the
// algorithm identifier, cost, and salt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultPasswordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored hash. The
// comparison inside bcrypt is constant-time.
func VerifyPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
