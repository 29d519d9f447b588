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

// InstantiateTemplateInput carries what a template does not store.
type InstantiateTemplateInput struct {
	Name        string
	Destination domain.DestinationCredentials
	LocationID  string
}

// TemplateService saves and reuses connection configurations.
type TemplateService struct {
	templates   ports.TemplateRepository
	connections ports.ConnectionRepository
	creator     *ConnectionService
	logger      zerolog.Logger
	now         func() time.Time
}

func NewTemplateService(
	templates ports.TemplateRepository,
	connections ports.ConnectionRepository,
	creator *ConnectionService,
	logger zerolog.Logger,
) *TemplateService {
	return &TemplateService{
		templates:   templates,
		connections: connections,
		creator:     creator,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateFromConnection copies the platform and rules of a connection.
// Credentials are never copied.
func (s *TemplateService) CreateFromConnection(ctx context.Context, shop, connectionID, name string) (*domain.Template, error) {
	conn, err := loadOwnedConnection(ctx, s.connections, shop, connectionID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = conn.Name
	}
	t := &domain.Template{
		ID:               uuid.NewString(),
		InstallationShop: conn.InstallationShop,
		Name:             name,
		Platform:         conn.Platform,
		Rules:            conn.Rules,
		SourceConnection: conn.ID,
		CreatedAt:        s.now(),
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	s.logger.Info().Str("templateId", t.ID).Str("connectionId", conn.ID).Msg("Created template")
	return t, nil
}

func (s *TemplateService) List(ctx context.Context, shop string) ([]*domain.Template, error) {
	out, err := s.templates.ListByInstallation(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return out, nil
}

func (s *TemplateService) Delete(ctx context.Context, shop, id string) error {
	if _, err := s.owned(ctx, shop, id); err != nil {
		return err
	}
	if err := s.templates.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// Instantiate creates a new connection from a template and fresh credentials.
func (s *TemplateService) Instantiate(ctx context.Context, shop, id string, input InstantiateTemplateInput) (*domain.Connection, error) {
	t, err := s.owned(ctx, shop, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = t.Name
	}
	return s.creator.Create(ctx, CreateConnectionInput{
		InstallationShop: t.InstallationShop,
		Name:             name,
		Platform:         t.Platform,
		Destination:      input.Destination,
		LocationID:       input.LocationID,
		Rules:            t.Rules,
	})
}

func (s *TemplateService) owned(ctx context.Context, shop, id string) (*domain.Template, error) {
	t, err := s.templates.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if t == nil || t.InstallationShop != shop {
		return nil, fmt.Errorf("template %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}
