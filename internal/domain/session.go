package domain

import "time"

// OAuthState represents a pending OAuth handshake. The State token is the
// record key and may be consumed exactly once.
type OAuthState struct {
	State       string    `json:"state" bson:"_id"`
	Shop        string    `json:"shop" bson:"shop"`
	Scopes      []string  `json:"scopes" bson:"scopes"`
	InviteToken string    `json:"invite_token,omitempty" bson:"invite_token,omitempty"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the handshake is past its expiry at now.
func (s *OAuthState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
