package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"archie-core-sync-layer/internal/domain"

	"github.com/rs/zerolog"
)

// Uninstaller clears the credential of an uninstalled shop.
type Uninstaller interface {
	MarkUninstalled(ctx context.Context, shop string) error
}

// AppUninstalledHandler handles app uninstalled webhook events
type AppUninstalledHandler struct {
	installations Uninstaller
	logger        zerolog.Logger
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(installations Uninstaller, logger zerolog.Logger) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		installations: installations,
		logger:        logger,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

// Handle processes an app uninstalled webhook event
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	shopDomain := event.Shop
	if shopDomain == "" {
		var shopData struct {
			Domain          string `json:"domain"`
			MyshopifyDomain string `json:"myshopify_domain"`
		}
		if err := json.Unmarshal(event.Payload, &shopData); err != nil {
			return fmt.Errorf("failed to parse app uninstalled webhook payload: %w", err)
		}
		shopDomain = shopData.MyshopifyDomain
		if shopDomain == "" {
			shopDomain = shopData.Domain
		}
	}

	if err := h.installations.MarkUninstalled(ctx, shopDomain); err != nil {
		return err
	}

	// Connections stay in place and cannot run until the shop re-authorizes.
	h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", shopDomain).
		Msg("App uninstalled - credential cleared")
	return nil
}
