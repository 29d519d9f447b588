package domain

import "time"

// Template is a secret-free copy of a connection configuration.
type Template struct {
	ID               string    `json:"id"`
	InstallationShop string    `json:"installation_shop"`
	Name             string    `json:"name"`
	Platform         Platform  `json:"platform"`
	Rules            SyncRules `json:"rules"`
	SourceConnection string    `json:"source_connection,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
