// Package connectors selects the StoreConnector implementation for a platform.
package connectors

import (
	"context"
	"fmt"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/woocommerce"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// ShopifyOpener opens Shopify connectors for a shop.
type ShopifyOpener interface {
	Connector(shop, accessToken string) (ports.StoreConnector, error)
}

// Factory implements ports.ConnectorFactory.
type Factory struct {
	shopify    ShopifyOpener
	wooRate    float64
	wooTimeout time.Duration
	logger     zerolog.Logger
}

var _ ports.ConnectorFactory = (*Factory)(nil)

// NewFactory creates a factory. wooRate throttles each WooCommerce store.
func NewFactory(shopify ShopifyOpener, wooRate float64, wooTimeout time.Duration, logger zerolog.Logger) *Factory {
	return &Factory{shopify: shopify, wooRate: wooRate, wooTimeout: wooTimeout, logger: logger}
}

// Source opens the installation shop's catalog.
func (f *Factory) Source(_ context.Context, shop, accessToken string) (ports.StoreConnector, error) {
	return f.shopify.Connector(shop, accessToken)
}

func (f *Factory) Destination(_ context.Context, conn *domain.Connection, creds domain.DestinationCredentials) (ports.StoreConnector, error) {
	switch conn.Platform {
	case domain.PlatformShopify:
		return f.shopify.Connector(creds.ShopDomain, creds.AccessToken)
	case domain.PlatformWooCommerce:
		return woocommerce.NewConnector(woocommerce.Config{
			BaseURL:           creds.BaseURL,
			ConsumerKey:       creds.ConsumerKey,
			ConsumerSecret:    creds.ConsumerSecret,
			Timeout:           f.wooTimeout,
			RequestsPerSecond: f.wooRate,
		}, f.logger), nil
	}
	return nil, fmt.Errorf("unsupported platform %q: %w", conn.Platform, domain.ErrValidation)
}
