package users

import "time"

// UserKind tags the account category. It is resolved once at authentication
// time and carried on the user record, so downstream code never inspects a
// profile table to decide what kind of actor it is dealing with.
type UserKind string

const (
	KindStudent UserKind = "student"
	KindFaculty UserKind = "faculty"
	KindAdmin   UserKind = "admin"
)

// Valid reports whether the kind is one of the known tags.
func (k UserKind) Valid() bool {
	switch k {
	case KindStudent, KindFaculty, KindAdmin:
		return true
	}
	return false
}

// User represents an account as seen by the access control core.
type User struct {
	ID                int64
	Email             string
	Name              string
	Kind              UserKind
	Department        string
	IsSuperuser       bool
	DirectPermissions []string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
