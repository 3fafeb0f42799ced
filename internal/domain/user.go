package domain

import "time"

// User represents an account allowed to upload and query logs.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
}
