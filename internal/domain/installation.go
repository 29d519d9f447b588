package domain

import (
	"regexp"
	"strings"
	"time"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// NormalizeShopDomain lowercases and trims a shop domain and validates it
// against the myshopify.com pattern.
func NormalizeShopDomain(shop string) (string, error) {
	shop = strings.ToLower(strings.TrimSpace(shop))
	shop = strings.TrimPrefix(shop, "https://")
	shop = strings.TrimSuffix(shop, "/")
	if !shopDomainPattern.MatchString(shop) {
		return "", ErrInvalidShopDomain
	}
	return shop, nil
}

// Installation is the OAuth-derived credential record for a source shop.
// AccessToken holds the encrypted credential and is empty once revoked.
type Installation struct {
	Shop               string     `json:"shop"`
	AccessToken        string     `json:"-"`
	Scopes             []string   `json:"scopes"`
	WebhooksRegistered bool       `json:"webhooks_registered"`
	Stale              bool       `json:"stale"`
	InstalledAt        time.Time  `json:"installed_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	UninstalledAt      *time.Time `json:"uninstalled_at,omitempty"`
}

// NeedsReinstall is true while the installation lacks a credential.
func (i *Installation) NeedsReinstall() bool {
	return i == nil || i.AccessToken == ""
}

// InstallationStatus is the caller-facing view of an installation.
type InstallationStatus struct {
	Shop           string     `json:"shop"`
	Installed      bool       `json:"installed"`
	NeedsReinstall bool       `json:"needs_reinstall"`
	Scopes         []string   `json:"scopes,omitempty"`
	InstalledAt    *time.Time `json:"installed_at,omitempty"`
}
