package api

import (
	"encoding/json"
	"io"
	"net/http"

	"archie-core-sync-layer/internal/application"
	"archie-core-sync-layer/internal/domain"
)

// maxWebhookBody bounds webhook payloads read into memory.
const maxWebhookBody = 5 << 20

// beginAuth redirects the merchant to the platform consent screen.
func (h *handlers) beginAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	authURL, err := h.Auth.BeginAuthorization(r.Context(), q.Get("shop"), q.Get("invite"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *handlers) authCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	inst, err := h.Auth.CompleteAuthorization(r.Context(), application.CallbackParams{
		Shop:  q.Get("shop"),
		State: q.Get("state"),
		Code:  q.Get("code"),
		Query: q,
	})
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	http.Redirect(w, r, h.PostInstallURL(inst.Shop), http.StatusFound)
}

func (h *handlers) installationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Auth.GetInstallationStatus(r.Context(), domain.ShopFromContext(r.Context()))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// webhook verifies and dispatches a Shopify delivery. Dispatch failures
// return 500 so the platform retries.
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	topic := r.Header.Get("X-Shopify-Topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "missing X-Shopify-Topic header")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to read webhook body")
		writeError(w, http.StatusBadRequest, domain.CodeValidation, "failed to read body")
		return
	}

	if !h.Verifier.VerifyWebhook(r, body) {
		h.Logger.Warn().Str("topic", topic).Msg("Webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, domain.CodeSignatureInvalid, "invalid webhook signature")
		return
	}

	event := &domain.WebhookEvent{
		Topic:    topic,
		Shop:     webhookShop(r, body),
		Payload:  body,
		Verified: true,
	}
	if err := h.Webhooks.Dispatch(r.Context(), event); err != nil {
		h.Logger.Error().Err(err).Str("topic", topic).Str("shop", event.Shop).Msg("Failed to dispatch webhook")
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, "failed to process webhook")
		return
	}

	h.Logger.Info().Str("topic", topic).Str("shop", event.Shop).Msg("Webhook processed")
	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// webhookShop prefers the shop header and falls back to the payload.
func webhookShop(r *http.Request, body []byte) string {
	if shop := r.Header.Get("X-Shopify-Shop-Domain"); shop != "" {
		return shop
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"myshopify_domain", "shop_domain", "domain"} {
		if shop, ok := payload[key].(string); ok && shop != "" {
			return shop
		}
	}
	return ""
}
