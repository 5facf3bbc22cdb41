package models

import "time"

// User is an account record. Email is unique and compared exactly as
// stored. LastLogin is nil until the first successful login.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}
