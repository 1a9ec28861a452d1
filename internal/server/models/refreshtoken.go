package models

import "time"

// RefreshToken is the server-side record behind an opaque refresh token.
// JwtID pairs it with the access token minted alongside it.
type RefreshToken struct {
	Token       string
	JwtID       string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Used        bool
	Invalidated bool
}
