// Package auth signs invite tokens.
package auth

import (
	"errors"
	"time"

	"archie-core-sync-layer/internal/ports"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "archie-core-sync-layer"

type inviteClaims struct {
	InvitingShop    string `json:"inviting_shop"`
	DestinationShop string `json:"destination_shop"`

	jwt.RegisteredClaims
}

// InviteSigner issues HS256 invite tokens bound to an invite id.
type InviteSigner struct {
	Secret []byte
}

var _ ports.InviteTokenSigner = InviteSigner{}

func (s InviteSigner) Sign(c ports.InviteClaims) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("invite signing key is not configured")
	}
	now := time.Now().UTC()
	claims := inviteClaims{
		InvitingShop:    c.InvitingShop,
		DestinationShop: c.DestinationShop,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.InviteID,
			Issuer:    issuer,
			Subject:   c.DestinationShop,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}

func (s InviteSigner) Verify(token string) (ports.InviteClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &inviteClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.Secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return ports.InviteClaims{}, err
	}
	c, ok := parsed.Claims.(*inviteClaims)
	if !ok || !parsed.Valid || c.ID == "" {
		return ports.InviteClaims{}, errors.New("invalid token")
	}
	out := ports.InviteClaims{
		InviteID:        c.ID,
		InvitingShop:    c.InvitingShop,
		DestinationShop: c.DestinationShop,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
