package models

import "time"

// User is an entry of the user directory. PasswordHash is a bcrypt hash and
// never leaves the server.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Claim is an extra (type, value) pair persisted per user and copied into
// every access token minted for that user.
type Claim struct {
	Type  string
	Value string
}
