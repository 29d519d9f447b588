package entity

import (
	"time"

	"archie-core-sync-layer/internal/domain"
)

// MongoDestinationDoc holds the encrypted destination credentials
type MongoDestinationDoc struct {
	ShopDomain     string `bson:"shopDomain,omitempty"`
	AccessToken    string `bson:"accessToken,omitempty"`
	BaseURL        string `bson:"baseUrl,omitempty"`
	ConsumerKey    string `bson:"consumerKey,omitempty"`
	ConsumerSecret string `bson:"consumerSecret,omitempty"`
}

// MongoConnectionDoc represents a connection in MongoDB
type MongoConnectionDoc struct {
	ID               string              `bson:"_id"`
	InstallationShop string              `bson:"installationShop"`
	Name             string              `bson:"name"`
	Platform         string              `bson:"platform"`
	Destination      MongoDestinationDoc `bson:"destination"`
	LocationID       string              `bson:"locationId,omitempty"`
	Status           string              `bson:"status"`
	StatusReason     string              `bson:"statusReason,omitempty"`
	Rules            domain.SyncRules    `bson:"rules"`
	SyncedItemCount  int                 `bson:"syncedItemCount"`
	CreatedAt        time.Time           `bson:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt"`
	LastSyncedAt     *time.Time          `bson:"lastSyncedAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoConnectionDoc) ToDomain() *domain.Connection {
	return &domain.Connection{
		ID:               d.ID,
		InstallationShop: d.InstallationShop,
		Name:             d.Name,
		Platform:         domain.Platform(d.Platform),
		Destination: domain.DestinationCredentials{
			ShopDomain:     d.Destination.ShopDomain,
			AccessToken:    d.Destination.AccessToken,
			BaseURL:        d.Destination.BaseURL,
			ConsumerKey:    d.Destination.ConsumerKey,
			ConsumerSecret: d.Destination.ConsumerSecret,
		},
		LocationID:      d.LocationID,
		Status:          domain.ConnectionStatus(d.Status),
		StatusReason:    d.StatusReason,
		Rules:           d.Rules,
		SyncedItemCount: d.SyncedItemCount,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		LastSyncedAt:    d.LastSyncedAt,
	}
}

// MongoConnectionDocFromDomain converts a domain entity to a MongoDB document
func MongoConnectionDocFromDomain(c *domain.Connection) *MongoConnectionDoc {
	return &MongoConnectionDoc{
		ID:               c.ID,
		InstallationShop: c.InstallationShop,
		Name:             c.Name,
		Platform:         string(c.Platform),
		Destination: MongoDestinationDoc{
			ShopDomain:     c.Destination.ShopDomain,
			AccessToken:    c.Destination.AccessToken,
			BaseURL:        c.Destination.BaseURL,
			ConsumerKey:    c.Destination.ConsumerKey,
			ConsumerSecret: c.Destination.ConsumerSecret,
		},
		LocationID:      c.LocationID,
		Status:          string(c.Status),
		StatusReason:    c.StatusReason,
		Rules:           c.Rules,
		SyncedItemCount: c.SyncedItemCount,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		LastSyncedAt:    c.LastSyncedAt,
	}
}
