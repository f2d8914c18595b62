// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is one account owning a clipboard history and zero or more API keys.
// Usernames are unique; the comparison is case-insensitive and enforced by
// the storage layer with an explicit lowercased unique index.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Active       bool
	Admin        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
