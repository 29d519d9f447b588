package entity

import (
	"time"

	"archie-core-sync-layer/internal/domain"
)

// MongoTemplateDoc represents a connection template in MongoDB
type MongoTemplateDoc struct {
	ID               string           `bson:"_id"`
	InstallationShop string           `bson:"installationShop"`
	Name             string           `bson:"name"`
	Platform         string           `bson:"platform"`
	Rules            domain.SyncRules `bson:"rules"`
	SourceConnection string           `bson:"sourceConnection,omitempty"`
	CreatedAt        time.Time        `bson:"createdAt"`
}

func (d *MongoTemplateDoc) ToDomain() *domain.Template {
	return &domain.Template{
		ID:               d.ID,
		InstallationShop: d.InstallationShop,
		Name:             d.Name,
		Platform:         domain.Platform(d.Platform),
		Rules:            d.Rules,
		SourceConnection: d.SourceConnection,
		CreatedAt:        d.CreatedAt,
	}
}

func MongoTemplateDocFromDomain(t *domain.Template) *MongoTemplateDoc {
	return &MongoTemplateDoc{
		ID:               t.ID,
		InstallationShop: t.InstallationShop,
		Name:             t.Name,
		Platform:         string(t.Platform),
		Rules:            t.Rules,
		SourceConnection: t.SourceConnection,
		CreatedAt:        t.CreatedAt,
	}
}

// MongoInviteDoc represents a retailer invite in MongoDB
type MongoInviteDoc struct {
	ID               string     `bson:"_id"`
	InstallationShop string     `bson:"installationShop"`
	Name             string     `bson:"name"`
	DestinationShop  string     `bson:"destinationShop"`
	Email            string     `bson:"email,omitempty"`
	Status           string     `bson:"status"`
	InstallURL       string     `bson:"installUrl"`
	ConnectionID     string     `bson:"connectionId,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt"`
	ExpiresAt        time.Time  `bson:"expiresAt"`
	AcceptedAt       *time.Time `bson:"acceptedAt,omitempty"`
}

func (d *MongoInviteDoc) ToDomain() *domain.Invite {
	return &domain.Invite{
		ID:               d.ID,
		InstallationShop: d.InstallationShop,
		Name:             d.Name,
		DestinationShop:  d.DestinationShop,
		Email:            d.Email,
		Status:           domain.InviteStatus(d.Status),
		InstallURL:       d.InstallURL,
		ConnectionID:     d.ConnectionID,
		CreatedAt:        d.CreatedAt,
		ExpiresAt:        d.ExpiresAt,
		AcceptedAt:       d.AcceptedAt,
	}
}

func MongoInviteDocFromDomain(i *domain.Invite) *MongoInviteDoc {
	return &MongoInviteDoc{
		ID:               i.ID,
		InstallationShop: i.InstallationShop,
		Name:             i.Name,
		DestinationShop:  i.DestinationShop,
		Email:            i.Email,
		Status:           string(i.Status),
		InstallURL:       i.InstallURL,
		ConnectionID:     i.ConnectionID,
		CreatedAt:        i.CreatedAt,
		ExpiresAt:        i.ExpiresAt,
		AcceptedAt:       i.AcceptedAt,
	}
}
