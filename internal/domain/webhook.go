package domain

// WebhookEvent represents a verified Shopify webhook delivery.
type WebhookEvent struct {
	Topic    string `json:"topic"`
	Shop     string `json:"shop"`
	Payload  []byte `json:"payload"`
	Verified bool   `json:"verified"`
}

// Webhook topics handled by the sync layer.
const (
	TopicProductsCreate = "products/create"
	TopicProductsUpdate = "products/update"
	TopicAppUninstalled = "app/uninstalled"
)

// DefaultWebhookTopics are registered on first installation.
var DefaultWebhookTopics = []string{TopicProductsCreate, TopicProductsUpdate, TopicAppUninstalled}
