package entity

import (
	"time"

	"archie-core-sync-layer/internal/domain"
)

// MongoInstallationDoc represents an installation in MongoDB
type MongoInstallationDoc struct {
	Shop               string     `bson:"_id"`
	AccessToken        string     `bson:"accessToken"`
	Scopes             []string   `bson:"scopes"`
	WebhooksRegistered bool       `bson:"webhooksRegistered"`
	Stale              bool       `bson:"stale"`
	InstalledAt        time.Time  `bson:"installedAt"`
	UpdatedAt          time.Time  `bson:"updatedAt"`
	UninstalledAt      *time.Time `bson:"uninstalledAt,omitempty"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoInstallationDoc) ToDomain() *domain.Installation {
	return &domain.Installation{
		Shop:               d.Shop,
		AccessToken:        d.AccessToken,
		Scopes:             d.Scopes,
		WebhooksRegistered: d.WebhooksRegistered,
		Stale:              d.Stale,
		InstalledAt:        d.InstalledAt,
		UpdatedAt:          d.UpdatedAt,
		UninstalledAt:      d.UninstalledAt,
	}
}

// MongoInstallationDocFromDomain converts a domain entity to a MongoDB document
func MongoInstallationDocFromDomain(i *domain.Installation) *MongoInstallationDoc {
	return &MongoInstallationDoc{
		Shop:               i.Shop,
		AccessToken:        i.AccessToken,
		Scopes:             i.Scopes,
		WebhooksRegistered: i.WebhooksRegistered,
		Stale:              i.Stale,
		InstalledAt:        i.InstalledAt,
		UpdatedAt:          i.UpdatedAt,
		UninstalledAt:      i.UninstalledAt,
	}
}
