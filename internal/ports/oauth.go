package ports

import (
	"context"
	"net/url"
)

// AccessGrant is the result of a successful code exchange.
type AccessGrant struct {
	AccessToken string
	Scopes      []string
}

// OAuthProvider is the platform side of the installation handshake.
type OAuthProvider interface {
	AuthorizeURL(shop, state string, scopes []string) (string, error)
	VerifySignature(params url.Values) bool
	ExchangeCode(ctx context.Context, shop, code string) (*AccessGrant, error)
}

// WebhookRegistrar subscribes a shop to webhook topics.
type WebhookRegistrar interface {
	Register(ctx context.Context, shop, accessToken string, topics []string) error
}

// LocationResolver finds the default inventory location of a shop.
type LocationResolver interface {
	PrimaryLocation(ctx context.Context, shop, accessToken string) (string, error)
}
