package domain

import "time"

// UsernameSuffixAlphabet is the character set for generated username suffixes.
const UsernameSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// UsernameSuffixLen is the number of random characters appended to a username.
const UsernameSuffixLen = 4

// Account links a user to their player on the agent platform.
// ExternalID stays nil until the player id is resolved.
type Account struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	PasswordEnc string    `json:"-"`
	ExternalID  *string   `json:"external_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Ready reports whether the platform player id is known.
func (a *Account) Ready() bool {
	return a.ExternalID != nil && *a.ExternalID != ""
}

// BuildUsername joins a base name and a generated suffix.
func BuildUsername(base, suffix string) string {
	return base + "_" + suffix
}
