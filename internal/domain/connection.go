package domain

import (
	"net/url"
	"strings"
	"time"
)

// Platform identifies the destination store variant.
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformShopify || p == PlatformWooCommerce
}

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionPaused   ConnectionStatus = "paused"
	ConnectionDisabled ConnectionStatus = "disabled"
)

// SyncRules are the field-level sync switches of a connection.
type SyncRules struct {
	SyncPrice       bool `json:"sync_price" bson:"sync_price"`
	SyncCategories  bool `json:"sync_categories" bson:"sync_categories"`
	SyncTags        bool `json:"sync_tags" bson:"sync_tags"`
	SyncCollections bool `json:"sync_collections" bson:"sync_collections"`
	CreateMissing   bool `json:"create_missing" bson:"create_missing"`
	PublishNew      bool `json:"publish_new" bson:"publish_new"`
}

// DestinationCredentials hold the variant-specific destination access.
// Secret fields are stored encrypted.
type DestinationCredentials struct {
	ShopDomain     string `json:"shop_domain,omitempty" bson:"shop_domain,omitempty"`
	AccessToken    string `json:"-" bson:"access_token,omitempty"`
	BaseURL        string `json:"base_url,omitempty" bson:"base_url,omitempty"`
	ConsumerKey    string `json:"-" bson:"consumer_key,omitempty"`
	ConsumerSecret string `json:"-" bson:"consumer_secret,omitempty"`
}

// Identifier returns the destination store identity used for display and
// duplicate detection.
func (c DestinationCredentials) Identifier(p Platform) string {
	if p == PlatformWooCommerce {
		return strings.TrimSuffix(strings.ToLower(c.BaseURL), "/")
	}
	return strings.ToLower(c.ShopDomain)
}

// Connection is a configured pairing of one source shop and one destination store.
type Connection struct {
	ID               string                 `json:"id"`
	InstallationShop string                 `json:"installation_shop"`
	Name             string                 `json:"name"`
	Platform         Platform               `json:"platform"`
	Destination      DestinationCredentials `json:"destination"`
	LocationID       string                 `json:"location_id,omitempty"`
	Status           ConnectionStatus       `json:"status"`
	StatusReason     string                 `json:"status_reason,omitempty"`
	Rules            SyncRules              `json:"rules"`
	SyncedItemCount  int                    `json:"synced_item_count"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	LastSyncedAt     *time.Time             `json:"last_synced_at,omitempty"`
}

// Validate checks the variant-specific required fields.
func (c *Connection) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if !c.Platform.Valid() {
		return NewValidationError("platform", "must be shopify or woocommerce")
	}
	switch c.Platform {
	case PlatformShopify:
		if _, err := NormalizeShopDomain(c.Destination.ShopDomain); err != nil {
			return NewValidationError("destination.shop_domain", "must be a *.myshopify.com domain")
		}
		if c.Destination.AccessToken == "" {
			return NewValidationError("destination.access_token", "is required")
		}
		if strings.TrimSpace(c.LocationID) == "" {
			return NewValidationError("location_id", "is required for shopify destinations")
		}
	case PlatformWooCommerce:
		u, err := url.Parse(c.Destination.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
			return NewValidationError("destination.base_url", "must be an absolute http(s) URL")
		}
		if c.Destination.ConsumerKey == "" || c.Destination.ConsumerSecret == "" {
			return NewValidationError("destination.consumer_key", "key and secret are required")
		}
	}
	return nil
}

// NeedsReinstall is true while the connection is disabled by a rejected
// credential. Only re-authorization clears it.
func (c *Connection) NeedsReinstall() bool {
	return c.Status == ConnectionDisabled && c.StatusReason == StatusReasonCredentialRejected
}

// Runnable returns the error that prevents a new job, or nil.
func (c *Connection) Runnable() error {
	switch c.Status {
	case ConnectionPaused:
		return ErrConnectionPaused
	case ConnectionDisabled:
		return ErrConnectionDisabled
	}
	return nil
}

// ConnectionSummary is the list view of a connection.
type ConnectionSummary struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Type            Platform         `json:"type"`
	Status          ConnectionStatus `json:"status"`
	SyncedItemCount int              `json:"synced_item_count"`
	Destination     string           `json:"destination"`
	NeedsReinstall  bool             `json:"needs_reinstall"`
	LastSyncedAt    *time.Time       `json:"last_synced_at,omitempty"`
}

// Summary builds the list view.
func (c *Connection) Summary() ConnectionSummary {
	return ConnectionSummary{
		ID:              c.ID,
		Name:            c.Name,
		Type:            c.Platform,
		Status:          c.Status,
		SyncedItemCount: c.SyncedItemCount,
		Destination:     c.Destination.Identifier(c.Platform),
		NeedsReinstall:  c.NeedsReinstall(),
		LastSyncedAt:    c.LastSyncedAt,
	}
}

// StatusReasonCredentialRejected marks a connection disabled after the
// platform rejected a credential.
const StatusReasonCredentialRejected = "credential rejected"
