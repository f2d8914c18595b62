package models

import "time"

// ApiKey is an opaque bearer token owned by exactly one account. The token
// has a fixed 3-character prefix and a fixed total length of 35.
type ApiKey struct {
	ID         string
	AccountID  string
	Token      string
	Label      string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	Revoked    bool
}

// Usable reports whether the key itself can authenticate at the given
// moment: not revoked and not expired. The owning account's active flag is
// checked separately by the auth service.
func (k *ApiKey) Usable(now time.Time) bool {
	if k.Revoked {
		return false
	}
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return false
	}
	return true
}
