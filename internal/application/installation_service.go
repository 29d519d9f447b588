package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
)

// InviteAcceptor completes an invite once the invited shop has installed.
type InviteAcceptor interface {
	AcceptInvite(ctx context.Context, token, installedShop, accessToken string) error
}

// CallbackParams are the values returned to the OAuth callback.
type CallbackParams struct {
	Shop  string
	State string
	Code  string
	// Query holds every signed parameter, including hmac.
	Query url.Values
}

// InstallationService owns installation records and the OAuth handshake.
type InstallationService struct {
	installations ports.InstallationRepository
	states        ports.OAuthStateRepository
	connections   ports.ConnectionRepository
	oauth         ports.OAuthProvider
	webhooks      ports.WebhookRegistrar
	vault         *CredentialVault
	invites       InviteAcceptor
	activity      *ActivityLog
	logger        zerolog.Logger
	scopes        []string
	handshakeTTL  time.Duration
	now           func() time.Time
}

// NewInstallationService creates the installation service. invites may be nil.
func NewInstallationService(
	installations ports.InstallationRepository,
	states ports.OAuthStateRepository,
	connections ports.ConnectionRepository,
	oauth ports.OAuthProvider,
	webhooks ports.WebhookRegistrar,
	vault *CredentialVault,
	invites InviteAcceptor,
	activity *ActivityLog,
	logger zerolog.Logger,
	scopes []string,
	handshakeTTL time.Duration,
) *InstallationService {
	if handshakeTTL <= 0 {
		handshakeTTL = 10 * time.Minute
	}
	return &InstallationService{
		installations: installations,
		states:        states,
		connections:   connections,
		oauth:         oauth,
		webhooks:      webhooks,
		vault:         vault,
		invites:       invites,
		activity:      activity,
		logger:        logger,
		scopes:        scopes,
		handshakeTTL:  handshakeTTL,
		now:           time.Now,
	}
}

// BeginAuthorization stores a fresh handshake state and returns the
// platform authorization URL. inviteToken is optional.
func (s *InstallationService) BeginAuthorization(ctx context.Context, shop, inviteToken string) (string, error) {
	shop, err := domain.NormalizeShopDomain(shop)
	if err != nil {
		return "", err
	}
	s.purgeExpired(ctx)

	// Generate random state for CSRF protection
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	now := s.now()
	state := &domain.OAuthState{
		State:       hex.EncodeToString(stateBytes),
		Shop:        shop,
		Scopes:      append([]string(nil), s.scopes...),
		InviteToken: inviteToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.handshakeTTL),
	}
	if err := s.states.Create(ctx, state); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	authURL, err := s.oauth.AuthorizeURL(shop, state.State, state.Scopes)
	if err != nil {
		return "", fmt.Errorf("failed to generate auth URL: %w", err)
	}

	s.logger.Info().
		Str("shop", shop).
		Strs("scopes", state.Scopes).
		Bool("invite", inviteToken != "").
		Msg("OAuth handshake started")
	return authURL, nil
}

// CompleteAuthorization consumes the handshake state, verifies the callback,
// exchanges the code and upserts the installation.
func (s *InstallationService) CompleteAuthorization(ctx context.Context, params CallbackParams) (*domain.Installation, error) {
	shop, err := domain.NormalizeShopDomain(params.Shop)
	if err != nil {
		return nil, err
	}

	// A state is single-use whatever the outcome below.
	state, err := s.states.Consume(ctx, params.State)
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	s.purgeExpired(ctx)
	if state == nil || state.Shop != shop {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback with unknown or foreign state")
		return nil, domain.ErrStateMismatch
	}
	if state.Expired(s.now()) {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback with expired state")
		return nil, domain.ErrStateExpired
	}
	if !s.oauth.VerifySignature(params.Query) {
		s.logger.Warn().Str("shop", shop).Msg("OAuth callback signature verification failed")
		return nil, domain.ErrSignatureInvalid
	}

	grant, err := s.oauth.ExchangeCode(ctx, shop, params.Code)
	if err != nil {
		var te *domain.TokenExchangeError
		if !errors.As(err, &te) {
			te = &domain.TokenExchangeError{Err: err}
		}
		s.logger.Error().
			Err(te).
			Str("shop", shop).
			Int("upstreamStatus", te.Status).
			Str("upstreamBody", te.Body).
			Msg("Failed to exchange token")
		return nil, te
	}

	sealed, err := s.vault.Seal(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	existing, err := s.installations.Get(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}

	now := s.now()
	inst := &domain.Installation{Shop: shop, InstalledAt: now}
	if existing != nil {
		*inst = *existing
	}
	needsWebhooks := existing == nil || !existing.WebhooksRegistered || existing.Stale
	inst.AccessToken = sealed
	inst.Scopes = grant.Scopes
	if len(inst.Scopes) == 0 {
		inst.Scopes = state.Scopes
	}
	inst.Stale = false
	inst.UninstalledAt = nil
	inst.UpdatedAt = now
	if needsWebhooks {
		inst.WebhooksRegistered = false
	}

	if err := s.installations.Upsert(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to save installation: %w", err)
	}

	if needsWebhooks {
		s.registerWebhooks(ctx, inst, grant.AccessToken)
	}
	s.reactivateConnections(ctx, shop)

	if state.InviteToken != "" && s.invites != nil {
		if err := s.invites.AcceptInvite(ctx, state.InviteToken, shop, grant.AccessToken); err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to accept invite after installation")
		}
	}

	s.logger.Info().
		Str("shop", shop).
		Strs("scopes", inst.Scopes).
		Bool("reinstall", existing != nil).
		Msg("Installation completed")
	return inst, nil
}

// registerWebhooks subscribes the shop to the default topics. Failures are
// logged only; the installation stays usable for manual syncs.
func (s *InstallationService) registerWebhooks(ctx context.Context, inst *domain.Installation, accessToken string) {
	if s.webhooks == nil {
		return
	}
	if err := s.webhooks.Register(ctx, inst.Shop, accessToken, domain.DefaultWebhookTopics); err != nil {
		s.logger.Warn().Err(err).Str("shop", inst.Shop).Msg("Webhook registration failed")
		return
	}
	inst.WebhooksRegistered = true
	if err := s.installations.Upsert(ctx, inst); err != nil {
		s.logger.Warn().Err(err).Str("shop", inst.Shop).Msg("Failed to record webhook registration")
	}
}

// reactivateConnections re-enables connections that were disabled because a
// credential was rejected.
func (s *InstallationService) reactivateConnections(ctx context.Context, shop string) {
	if s.connections == nil {
		return
	}
	conns, err := s.connections.ListByInstallation(ctx, shop)
	if err != nil {
		s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to list connections for reactivation")
		return
	}
	for _, c := range conns {
		if c.Status != domain.ConnectionDisabled || c.StatusReason != domain.StatusReasonCredentialRejected {
			continue
		}
		if err := s.connections.UpdateStatus(ctx, c.ID, domain.ConnectionActive, ""); err != nil {
			s.logger.Warn().Err(err).Str("connectionId", c.ID).Msg("Failed to reactivate connection")
			continue
		}
		if s.activity != nil {
			s.activity.Info(ctx, c.ID, "", "connection re-enabled after re-authorization")
		}
	}
}

// GetInstallationStatus reports whether shop holds a usable credential.
func (s *InstallationService) GetInstallationStatus(ctx context.Context, shop string) (*domain.InstallationStatus, error) {
	inst, err := s.installations.Get(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	status := installationStatus(shop, inst)
	return &status, nil
}

func installationStatus(shop string, inst *domain.Installation) domain.InstallationStatus {
	status := domain.InstallationStatus{Shop: shop, NeedsReinstall: inst.NeedsReinstall()}
	if inst != nil {
		installedAt := inst.InstalledAt
		status.Installed = true
		status.Scopes = inst.Scopes
		status.InstalledAt = &installedAt
	}
	return status
}

// MarkUninstalled clears the credential and marks the installation stale.
func (s *InstallationService) MarkUninstalled(ctx context.Context, shop string) error {
	if err := s.installations.MarkStale(ctx, shop, s.now()); err != nil {
		return fmt.Errorf("failed to mark installation stale: %w", err)
	}
	s.logger.Info().Str("shop", shop).Msg("Installation marked stale after uninstall")
	return nil
}

// AccessToken returns the decrypted credential of shop.
func (s *InstallationService) AccessToken(ctx context.Context, shop string) (string, error) {
	return openInstallationToken(ctx, s.installations, s.vault, shop)
}

func openInstallationToken(ctx context.Context, repo ports.InstallationRepository, vault *CredentialVault, shop string) (string, error) {
	inst, err := repo.Get(ctx, shop)
	if err != nil {
		return "", fmt.Errorf("failed to get installation: %w", err)
	}
	if inst.NeedsReinstall() {
		return "", domain.ErrNeedsReinstall
	}
	return vault.Open(inst.AccessToken)
}

func (s *InstallationService) purgeExpired(ctx context.Context) {
	n, err := s.states.PurgeExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to purge expired oauth states")
		return
	}
	if n > 0 {
		s.logger.Debug().Int64("purged", n).Msg("Purged expired oauth states")
	}
}
