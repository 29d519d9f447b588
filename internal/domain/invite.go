package domain

import "time"

// InviteStatus is the lifecycle state of a retailer invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
)

// Invite asks a retailer shop to install the app and become a destination.
type Invite struct {
	ID               string       `json:"id"`
	InstallationShop string       `json:"installation_shop"`
	Name             string       `json:"name"`
	DestinationShop  string       `json:"destination_shop"`
	Email            string       `json:"email,omitempty"`
	Status           InviteStatus `json:"status"`
	InstallURL       string       `json:"install_url"`
	ConnectionID     string       `json:"connection_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	AcceptedAt       *time.Time   `json:"accepted_at,omitempty"`
}

// Expire marks a pending invite expired when past its window. It reports
// whether the status changed.
func (i *Invite) Expire(now time.Time) bool {
	if i.Status == InvitePending && !now.Before(i.ExpiresAt) {
		i.Status = InviteExpired
		return true
	}
	return false
}
