package auth

import "time"

// Account carries the credential-bearing view of a user record.
type Account struct {
	ID           int64
	Email        string
	Name         string
	Kind         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
