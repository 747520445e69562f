package users

import "time"

// User represents an account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Active reports whether the user has not been soft-deleted.
func (u User) Active() bool {
	return u.DeletedAt == nil
}
