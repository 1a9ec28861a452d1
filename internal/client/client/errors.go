package client

import (
	"errors"
	"strings"
)

var (
	ErrUnavailable    = errors.New("server unavailable")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotLoggedIn    = errors.New("not logged in")
	ErrSessionExpired = errors.New("session expired, please log in again")
)

// AuthError is a business failure reported by the server in-band.
type AuthError struct {
	Reason   string
	Messages []string
}

func (e *AuthError) Error() string {
	if len(e.Messages) == 0 {
		return e.Reason
	}
	return strings.Join(e.Messages, "; ")
}
