// Package passwd builds and checks htpasswd-style "user:bcrypt-hash"
// entries, the format Traefik's basic-auth middleware reads.
package passwd

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor for new hashes.
const Cost = 12

// ErrMalformed is returned for an entry without a ':' separator.
var ErrMalformed = errors.New("htpasswd entry must look like user:hash")

// Hash returns "user:hash" for password.
func Hash(user, password string) (string, error) {
	if user == "" || strings.Contains(user, ":") {
		return "", fmt.Errorf("invalid htpasswd user name %q", user)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return user + ":" + string(h), nil
}

// Check reports whether user and password match entry.  A different user
// name is a mismatch, not an error.
func Check(entry, user, password string) (bool, error) {
	entryUser, hash, ok := strings.Cut(entry, ":")
	if !ok {
		return false, ErrMalformed
	}
	if entryUser != user {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt: %w", err)
	}
}
