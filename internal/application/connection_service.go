package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreateConnectionInput represents input for creating a connection
type CreateConnectionInput struct {
	InstallationShop string
	Name             string
	Platform         domain.Platform
	Destination      domain.DestinationCredentials
	LocationID       string
	Rules            domain.SyncRules
}

// ConnectionList is the list view plus the owning installation status.
type ConnectionList struct {
	Installation domain.InstallationStatus  `json:"installation"`
	Connections  []domain.ConnectionSummary `json:"connections"`
}

// jobCanceller is the scheduler surface the connection service needs.
type jobCanceller interface {
	CancelActive(ctx context.Context, connectionID string) error
}

// ConnectionService owns connection records and their lifecycle.
type ConnectionService struct {
	connections   ports.ConnectionRepository
	installations ports.InstallationRepository
	jobs          ports.JobRepository
	vault         *CredentialVault
	canceller     jobCanceller
	activity      *ActivityLog
	logger        zerolog.Logger
	now           func() time.Time
}

// NewConnectionService creates a new connection service
func NewConnectionService(
	connections ports.ConnectionRepository,
	installations ports.InstallationRepository,
	jobs ports.JobRepository,
	vault *CredentialVault,
	canceller jobCanceller,
	activity *ActivityLog,
	logger zerolog.Logger,
) *ConnectionService {
	return &ConnectionService{
		connections:   connections,
		installations: installations,
		jobs:          jobs,
		vault:         vault,
		canceller:     canceller,
		activity:      activity,
		logger:        logger,
		now:           time.Now,
	}
}

// Create validates and stores a new active connection.
func (s *ConnectionService) Create(ctx context.Context, input CreateConnectionInput) (*domain.Connection, error) {
	shop, err := domain.NormalizeShopDomain(input.InstallationShop)
	if err != nil {
		return nil, err
	}
	dest := input.Destination
	dest.BaseURL = strings.TrimSpace(dest.BaseURL)
	if input.Platform == domain.PlatformShopify {
		if normalized, err := domain.NormalizeShopDomain(dest.ShopDomain); err == nil {
			dest.ShopDomain = normalized
		}
	}

	now := s.now()
	conn := &domain.Connection{
		ID:               uuid.NewString(),
		InstallationShop: shop,
		Name:             strings.TrimSpace(input.Name),
		Platform:         input.Platform,
		Destination:      dest,
		LocationID:       strings.TrimSpace(input.LocationID),
		Status:           domain.ConnectionActive,
		Rules:            input.Rules,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if conn.Platform == domain.PlatformShopify && dest.ShopDomain == shop {
		return nil, domain.NewValidationError("destination.shop_domain", "must differ from the source shop")
	}

	existing, err := s.connections.ListByInstallation(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	identifier := dest.Identifier(conn.Platform)
	for _, c := range existing {
		if c.Platform == conn.Platform && c.Destination.Identifier(c.Platform) == identifier {
			return nil, fmt.Errorf("connection to %s: %w", identifier, domain.ErrAlreadyExists)
		}
	}

	sealed, err := s.vault.SealDestination(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt destination credentials: %w", err)
	}
	stored := *conn
	stored.Destination = sealed
	if err := s.connections.Create(ctx, &stored); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	s.logger.Info().
		Str("connectionId", conn.ID).
		Str("shop", shop).
		Str("platform", string(conn.Platform)).
		Str("destination", identifier).
		Msg("Created connection")
	s.activity.Info(ctx, conn.ID, "", "connection created")
	return &stored, nil
}

// List returns the shop's connections and installation status.
func (s *ConnectionService) List(ctx context.Context, shop string) (*ConnectionList, error) {
	conns, err := s.connections.ListByInstallation(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	inst, err := s.installations.Get(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w", err)
	}
	out := &ConnectionList{
		Installation: installationStatus(shop, inst),
		Connections:  make([]domain.ConnectionSummary, 0, len(conns)),
	}
	for _, c := range conns {
		out.Connections = append(out.Connections, c.Summary())
	}
	return out, nil
}

// Get returns a connection owned by shop.
func (s *ConnectionService) Get(ctx context.Context, shop, id string) (*domain.Connection, error) {
	return loadOwnedConnection(ctx, s.connections, shop, id)
}

// loadOwnedConnection returns ErrNotFound for missing connections and for
// connections owned by another shop. An empty shop skips the ownership check.
func loadOwnedConnection(ctx context.Context, repo ports.ConnectionRepository, shop, id string) (*domain.Connection, error) {
	conn, err := repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil || (shop != "" && conn.InstallationShop != shop) {
		return nil, fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	return conn, nil
}

// Pause stops new jobs from being enqueued. A running job is left to finish.
func (s *ConnectionService) Pause(ctx context.Context, shop, id string) (*domain.Connection, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, id)
	if err != nil {
		return nil, err
	}
	if conn.Status == domain.ConnectionPaused {
		return conn, nil
	}
	if conn.Status == domain.ConnectionDisabled {
		return nil, domain.ErrConnectionDisabled
	}
	return s.setStatus(ctx, conn, domain.ConnectionPaused, "paused by merchant")
}

// Resume re-activates a paused connection. A connection disabled because a
// credential was rejected stays disabled until re-authorization.
func (s *ConnectionService) Resume(ctx context.Context, shop, id string) (*domain.Connection, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, id)
	if err != nil {
		return nil, err
	}
	switch conn.Status {
	case domain.ConnectionActive:
		return conn, nil
	case domain.ConnectionDisabled:
		if conn.NeedsReinstall() {
			return nil, domain.ErrNeedsReinstall
		}
		inst, err := s.installations.Get(ctx, conn.InstallationShop)
		if err != nil {
			return nil, fmt.Errorf("failed to get installation: %w", err)
		}
		if inst.NeedsReinstall() {
			return nil, domain.ErrNeedsReinstall
		}
	}
	return s.setStatus(ctx, conn, domain.ConnectionActive, "resumed by merchant")
}

func (s *ConnectionService) setStatus(ctx context.Context, conn *domain.Connection, status domain.ConnectionStatus, message string) (*domain.Connection, error) {
	if err := s.connections.UpdateStatus(ctx, conn.ID, status, ""); err != nil {
		return nil, fmt.Errorf("failed to update connection status: %w", err)
	}
	conn.Status = status
	conn.StatusReason = ""
	conn.UpdatedAt = s.now()
	s.activity.Info(ctx, conn.ID, "", message)
	return conn, nil
}

// Delete removes a connection and its job history. A running job is asked
// to stop at its next item boundary and ErrJobRunning is returned; the
// caller retries once it has stopped. Log entries are kept for audit.
func (s *ConnectionService) Delete(ctx context.Context, shop, id string) error {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, id)
	if err != nil {
		return err
	}
	active, err := s.jobs.FindActive(ctx, conn.ID)
	if err != nil {
		return fmt.Errorf("failed to find active job: %w", err)
	}
	if active != nil {
		if err := s.canceller.CancelActive(ctx, conn.ID); err != nil {
			return fmt.Errorf("failed to cancel active job: %w", err)
		}
		// The job may have started between the lookup and the cancel.
		active, err = s.jobs.Get(ctx, active.ID)
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}
		if active != nil && active.State == domain.JobRunning {
			s.activity.Warn(ctx, conn.ID, active.ID, domain.CodeJobRunning, "", "delete requested while job running; cancellation requested")
			return domain.ErrJobRunning
		}
	}

	if err := s.jobs.DeleteByConnection(ctx, conn.ID); err != nil {
		return fmt.Errorf("failed to delete job history: %w", err)
	}
	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	s.activity.Info(ctx, conn.ID, "", "connection deleted")
	s.logger.Info().Str("connectionId", conn.ID).Str("shop", conn.InstallationShop).Msg("Deleted connection")
	return nil
}
