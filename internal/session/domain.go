package session

import "time"

// Session binds an opaque bearer token to a principal for a limited time.
// Rows are immutable after creation; logout deletes them and expiry makes
// them invisible to lookups without any sweep being required.
type Session struct {
	Token       string
	PrincipalID string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	IP          string
	UserAgent   string
}

// Credentials is the slice of the principal row the login flow needs.
type Credentials struct {
	PrincipalID  string
	PasswordHash string
	IsActive     bool
}
