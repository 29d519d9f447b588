package domain

import "context"

// contextKey is a type for context keys to avoid collisions
type contextKey string

const shopKey contextKey = "shop_domain"

// WithShop stores the calling merchant's shop domain in ctx.
func WithShop(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, shopKey, shop)
}

// ShopFromContext returns the calling merchant's shop domain, if any.
func ShopFromContext(ctx context.Context) string {
	shop, _ := ctx.Value(shopKey).(string)
	return shop
}
