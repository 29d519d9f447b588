package ports

import (
	"context"
	"time"

	"archie-core-sync-layer/internal/domain"
)

// ListOptions narrow an item listing.
type ListOptions struct {
	UpdatedSince *time.Time
	PageSize     int
}

// Capabilities describe variant differences callers must honour.
type Capabilities struct {
	// InventoryViaLevels means stock is written with SetInventoryLevel and
	// must be stripped from update payloads.
	InventoryViaLevels bool
}

// StoreConnector is the uniform catalog surface of a store, independent of vendor.
// All failures are *domain.ConnectorError values.
type StoreConnector interface {
	Platform() domain.Platform
	Capabilities() Capabilities
	// ListItems returns the page at cursor; "" starts from the beginning.
	// Cursors are opaque and may be reused to restart a listing.
	ListItems(ctx context.Context, cursor string, opts ListOptions) (*domain.ItemPage, error)
	CreateItem(ctx context.Context, item domain.CatalogItem, deltas domain.ItemDeltas) error
	UpdateItem(ctx context.Context, sku string, deltas domain.ItemDeltas) error
	SetInventoryLevel(ctx context.Context, locationID, sku string, quantity int) error
}

// ConnectorFactory builds connectors from decrypted credentials.
type ConnectorFactory interface {
	Source(ctx context.Context, shop, accessToken string) (StoreConnector, error)
	Destination(ctx context.Context, conn *domain.Connection, creds domain.DestinationCredentials) (StoreConnector, error)
}
