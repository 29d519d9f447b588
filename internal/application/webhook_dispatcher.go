package application

import (
	"context"
	"fmt"

	"archie-core-sync-layer/internal/domain"

	"github.com/rs/zerolog"
)

// WebhookHandler processes verified webhook deliveries for some topics.
type WebhookHandler interface {
	CanHandle(topic string) bool
	Handle(ctx context.Context, event *domain.WebhookEvent) error
}

// WebhookDispatcher routes verified webhook events to their handlers.
type WebhookDispatcher struct {
	handlers []WebhookHandler
	logger   zerolog.Logger
}

// NewWebhookDispatcher creates a dispatcher over handlers.
func NewWebhookDispatcher(logger zerolog.Logger, handlers ...WebhookHandler) *WebhookDispatcher {
	return &WebhookDispatcher{handlers: handlers, logger: logger}
}

// Dispatch runs every handler registered for the event's topic. Unknown
// topics are acknowledged and ignored.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.WebhookEvent) error {
	if !event.Verified {
		return domain.ErrSignatureInvalid
	}
	shop, err := domain.NormalizeShopDomain(event.Shop)
	if err != nil {
		return err
	}
	event.Shop = shop

	handled := false
	for _, h := range d.handlers {
		if !h.CanHandle(event.Topic) {
			continue
		}
		handled = true
		if err := h.Handle(ctx, event); err != nil {
			return fmt.Errorf("failed to handle %s webhook: %w", event.Topic, err)
		}
	}
	if !handled {
		d.logger.Debug().Str("topic", event.Topic).Str("shop", shop).Msg("No handler for webhook topic")
	}
	return nil
}
