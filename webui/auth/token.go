// Package auth identifies callers of the metrics relay from request headers
// and optionally checks a shared access token against a bcrypt hash.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used by HashToken.
const DefaultCost = 12

var (
	// ErrEmptyToken is returned when hashing or verifying an empty token.
	ErrEmptyToken = errors.New("access token cannot be empty")

	// ErrTokenMismatch is returned when a token does not match the hash.
	// It does not reveal whether the hash itself was malformed.
	ErrTokenMismatch = errors.New("access token does not match")

	// ErrInvalidHash is returned for a string that is not a bcrypt hash.
	ErrInvalidHash = errors.New("invalid access token hash")
)

// HashToken returns the bcrypt hash of token for METRICS_TOKEN_HASH.
func HashToken(token string) (string, error) {
	return HashTokenWithCost(token, DefaultCost)
}

// HashTokenWithCost hashes token with an explicit bcrypt cost.
func HashTokenWithCost(token string, cost int) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", bcrypt.InvalidCostError(cost)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares token with hash in constant time.
func VerifyToken(token, hash string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if hash == "" {
		return ErrInvalidHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// IsValidHash reports whether hash is a well-formed bcrypt hash.
func IsValidHash(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}
