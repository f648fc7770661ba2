// Package models defines the domain entities shared across services.
package models

import (
	"strings"
	"time"
)

// User represents a persisted identity record.
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Username     string     `json:"username" bson:"username"`
	Email        string     `json:"email" bson:"email"`
	PasswordHash string     `json:"-" bson:"password_hash"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" bson:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
}

// Identity is the public projection of a User: the shape stored in
// sessions and returned by the API. The password hash is never part of it.
type Identity struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// Identity returns the public projection of the user.
func (u *User) Identity() Identity {
	return Identity{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLoginAt,
	}
}

// NormalizeEmail lowercases and trims an email address. All email
// comparisons in the system go through this so lookups stay
// case-insensitive regardless of how the address was typed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims surrounding whitespace from a username.
func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
