package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultInviteRules are applied to connections created from invites.
var DefaultInviteRules = domain.SyncRules{
	SyncPrice:     true,
	SyncTags:      true,
	CreateMissing: true,
}

// CreateInviteInput represents input for inviting a retailer shop
type CreateInviteInput struct {
	InstallationShop string
	Name             string
	DestinationShop  string
	Email            string
}

// InviteService issues retailer invites and completes them on install.
type InviteService struct {
	invites   ports.InviteRepository
	signer    ports.InviteTokenSigner
	creator   *ConnectionService
	locations ports.LocationResolver
	activity  *ActivityLog
	logger    zerolog.Logger
	appURL    string
	ttl       time.Duration
	now       func() time.Time
}

// NewInviteService creates an invite service.
func NewInviteService(
	invites ports.InviteRepository,
	signer ports.InviteTokenSigner,
	creator *ConnectionService,
	locations ports.LocationResolver,
	activity *ActivityLog,
	logger zerolog.Logger,
	appURL string,
	ttl time.Duration,
) *InviteService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &InviteService{
		invites:   invites,
		signer:    signer,
		creator:   creator,
		locations: locations,
		activity:  activity,
		logger:    logger,
		appURL:    strings.TrimSuffix(appURL, "/"),
		ttl:       ttl,
		now:       time.Now,
	}
}

var _ InviteAcceptor = (*InviteService)(nil)

// Create stores a pending invite and returns it with its install URL.
func (s *InviteService) Create(ctx context.Context, input CreateInviteInput) (*domain.Invite, error) {
	shop, err := domain.NormalizeShopDomain(input.InstallationShop)
	if err != nil {
		return nil, err
	}
	dest, err := domain.NormalizeShopDomain(input.DestinationShop)
	if err != nil {
		return nil, err
	}
	if dest == shop {
		return nil, domain.NewValidationError("destination_shop", "must differ from the inviting shop")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = dest
	}

	now := s.now()
	inv := &domain.Invite{
		ID:               uuid.NewString(),
		InstallationShop: shop,
		Name:             name,
		DestinationShop:  dest,
		Email:            strings.TrimSpace(input.Email),
		Status:           domain.InvitePending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.ttl),
	}
	token, err := s.signer.Sign(ports.InviteClaims{
		InviteID:        inv.ID,
		InvitingShop:    shop,
		DestinationShop: dest,
		ExpiresAt:       inv.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign invite: %w", err)
	}
	q := url.Values{}
	q.Set("shop", dest)
	q.Set("invite", token)
	inv.InstallURL = s.appURL + "/auth/shopify?" + q.Encode()

	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}
	s.logger.Info().Str("inviteId", inv.ID).Str("shop", shop).Str("destination", dest).Msg("Created invite")
	return inv, nil
}

// List returns the shop's invites, expiring pending ones past their window.
func (s *InviteService) List(ctx context.Context, shop string) ([]*domain.Invite, error) {
	invites, err := s.invites.ListByInstallation(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	now := s.now()
	for _, inv := range invites {
		if inv.Expire(now) {
			if err := s.invites.Update(ctx, inv); err != nil {
				s.logger.Warn().Err(err).Str("inviteId", inv.ID).Msg("Failed to expire invite")
			}
		}
	}
	return invites, nil
}

// AcceptInvite creates the connection an invite asked for once the invited
// shop has installed the app.
func (s *InviteService) AcceptInvite(ctx context.Context, token, installedShop, accessToken string) error {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInviteInvalid, err)
	}
	if claims.DestinationShop != installedShop {
		return fmt.Errorf("%w: invite is for another shop", domain.ErrInviteInvalid)
	}
	inv, err := s.invites.Get(ctx, claims.InviteID)
	if err != nil {
		return fmt.Errorf("failed to get invite: %w", err)
	}
	if inv == nil || inv.InstallationShop != claims.InvitingShop {
		return fmt.Errorf("%w: unknown invite", domain.ErrInviteInvalid)
	}
	now := s.now()
	if inv.Expire(now) {
		_ = s.invites.Update(ctx, inv)
	}
	if inv.Status != domain.InvitePending {
		return fmt.Errorf("%w: invite is %s", domain.ErrInviteInvalid, inv.Status)
	}

	location, err := s.locations.PrimaryLocation(ctx, installedShop, accessToken)
	if err != nil {
		return fmt.Errorf("failed to resolve location: %w", err)
	}
	conn, err := s.creator.Create(ctx, CreateConnectionInput{
		InstallationShop: inv.InstallationShop,
		Name:             inv.Name,
		Platform:         domain.PlatformShopify,
		Destination:      domain.DestinationCredentials{ShopDomain: installedShop, AccessToken: accessToken},
		LocationID:       location,
		Rules:            DefaultInviteRules,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		s.logger.Info().Str("inviteId", inv.ID).Msg("Invite destination already connected")
	case err != nil:
		return fmt.Errorf("failed to create connection: %w", err)
	default:
		inv.ConnectionID = conn.ID
	}

	inv.Status = domain.InviteAccepted
	inv.AcceptedAt = &now
	if err := s.invites.Update(ctx, inv); err != nil {
		return fmt.Errorf("failed to update invite: %w", err)
	}
	if conn != nil {
		s.activity.Info(ctx, conn.ID, "", "connection created from invite "+inv.ID)
	}
	s.logger.Info().Str("inviteId", inv.ID).Str("shop", installedShop).Msg("Invite accepted")
	return nil
}
