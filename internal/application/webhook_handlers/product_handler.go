package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"archie-core-sync-layer/internal/domain"

	"github.com/rs/zerolog"
)

// SyncTrigger enqueues jobs for every active connection of a shop.
type SyncTrigger interface {
	EnqueueForShop(ctx context.Context, shop string, jobType domain.JobType) (int, error)
}

// ProductHandler handles product-related webhook events
type ProductHandler struct {
	trigger SyncTrigger
	logger  zerolog.Logger
}

// NewProductHandler creates a new product webhook handler
func NewProductHandler(trigger SyncTrigger, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		trigger: trigger,
		logger:  logger,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *ProductHandler) CanHandle(topic string) bool {
	return topic == domain.TopicProductsCreate || topic == domain.TopicProductsUpdate
}

// Handle enqueues an incremental sync for the shop's connections
func (h *ProductHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var product struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(event.Payload, &product); err != nil {
		return fmt.Errorf("failed to parse product webhook payload: %w", err)
	}

	n, err := h.trigger.EnqueueForShop(ctx, event.Shop, domain.JobIncremental)
	if err != nil {
		return fmt.Errorf("failed to enqueue incremental sync: %w", err)
	}

	h.logger.Info().
		Str("topic", event.Topic).
		Str("shop", event.Shop).
		Int64("productId", product.ID).
		Str("title", product.Title).
		Int("enqueued", n).
		Msg("Processed product webhook event")
	return nil
}
