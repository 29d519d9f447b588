package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// AppConfig configures the Shopify app credentials and callback addresses.
type AppConfig struct {
	APIKey    string
	APISecret string
	// AppURL is the public base URL of this service.
	AppURL string
}

// App is the Shopify side of installation: OAuth, webhooks, locations and
// source connectors.
type App struct {
	app        goshopify.App
	apiKey     string
	appURL     string
	open       apiFactory
	httpClient *http.Client
	tokenURL   func(shop string) string
	logger     zerolog.Logger
}

var (
	_ ports.OAuthProvider    = (*App)(nil)
	_ ports.WebhookRegistrar = (*App)(nil)
	_ ports.LocationResolver = (*App)(nil)
)

// NewApp creates the Shopify app adapter.
func NewApp(cfg AppConfig, limiter *RateLimiter, logger zerolog.Logger) *App {
	appURL := strings.TrimSuffix(cfg.AppURL, "/")
	app := goshopify.App{
		ApiKey:      cfg.APIKey,
		ApiSecret:   cfg.APISecret,
		RedirectUrl: appURL + "/auth/callback",
	}
	return &App{
		app:        app,
		apiKey:     cfg.APIKey,
		appURL:     appURL,
		open:       newRESTFactory(app, limiter),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL: func(shop string) string {
			return fmt.Sprintf("https://%s/admin/oauth/access_token", shop)
		},
		logger: logger,
	}
}

// AuthorizeURL builds the grant screen URL. Shopify expects comma-separated scopes.
func (a *App) AuthorizeURL(shop, state string, scopes []string) (string, error) {
	q := url.Values{}
	q.Set("client_id", a.apiKey)
	q.Set("scope", strings.Join(scopes, ","))
	q.Set("redirect_uri", a.app.RedirectUrl)
	q.Set("state", state)
	u := url.URL{Scheme: "https", Host: shop, Path: "/admin/oauth/authorize", RawQuery: q.Encode()}

	a.logger.Debug().
		Str("shop", shop).
		Strs("scopes", scopes).
		Msg("Generated OAuth authorization URL")
	return u.String(), nil
}

// VerifySignature checks the hmac of the callback query.
func (a *App) VerifySignature(params url.Values) bool {
	if params.Get("hmac") == "" {
		return false
	}
	ok, err := a.app.VerifyAuthorizationURL(&url.URL{RawQuery: params.Encode()})
	return err == nil && ok
}

// ExchangeCode trades the authorization code for an offline access token.
// The upstream body is kept on the error but never logged.
func (a *App) ExchangeCode(ctx context.Context, shop, code string) (*ports.AccessGrant, error) {
	values := url.Values{}
	values.Set("client_id", a.apiKey)
	values.Set("client_secret", a.app.ApiSecret)
	values.Set("code", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL(shop), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, &domain.TokenExchangeError{Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TokenExchangeError{Err: fmt.Errorf("failed to exchange token: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn().
			Str("shop", shop).
			Int("status", resp.StatusCode).
			Msg("Token exchange rejected")
		return nil, &domain.TokenExchangeError{Status: resp.StatusCode, Body: string(body)}
	}

	var tokenResponse struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, &domain.TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tokenResponse.AccessToken == "" {
		return nil, &domain.TokenExchangeError{Status: resp.StatusCode, Err: fmt.Errorf("empty access token")}
	}
	return &ports.AccessGrant{
		AccessToken: tokenResponse.AccessToken,
		Scopes:      splitScopes(tokenResponse.Scope),
	}, nil
}

func splitScopes(s string) []string {
	var out []string
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			out = append(out, scope)
		}
	}
	return out
}

// Register subscribes shop to each topic not already pointing at this app.
func (a *App) Register(ctx context.Context, shop, accessToken string, topics []string) error {
	api, err := a.open(shop, accessToken)
	if err != nil {
		return err
	}
	address := a.appURL + "/webhooks/shopify"

	existing, err := api.ListWebhooks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", classify("list webhooks", err))
	}
	registered := make(map[string]bool, len(existing))
	for _, w := range existing {
		if w.Address == address {
			registered[w.Topic] = true
		}
	}

	for _, topic := range topics {
		if registered[topic] {
			continue
		}
		err := api.CreateWebhook(ctx, goshopify.Webhook{Topic: topic, Address: address, Format: "json"})
		if err != nil {
			return fmt.Errorf("failed to create webhook %s: %w", topic, classify("create webhook", err))
		}
		a.logger.Info().
			Str("shop", shop).
			Str("topic", topic).
			Msg("Webhook registered")
	}
	return nil
}

// PrimaryLocation returns the first active location of shop.
func (a *App) PrimaryLocation(ctx context.Context, shop, accessToken string) (string, error) {
	api, err := a.open(shop, accessToken)
	if err != nil {
		return "", err
	}
	locations, err := api.ListLocations(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list locations: %w", classify("list locations", err))
	}
	for _, l := range locations {
		if l.Active {
			return strconv.FormatUint(l.Id, 10), nil
		}
	}
	return "", fmt.Errorf("shop %s has no active location: %w", shop, domain.ErrNotFound)
}

// Connector opens a catalog connector for shop.
func (a *App) Connector(shop, accessToken string) (ports.StoreConnector, error) {
	api, err := a.open(shop, accessToken)
	if err != nil {
		return nil, err
	}
	return newConnector(api, shop, a.logger), nil
}

// VerifyWebhook reports whether body carries a valid X-Shopify-Hmac-Sha256
// for this app. r's body is replaced with body before verification.
func (a *App) VerifyWebhook(r *http.Request, body []byte) bool {
	r.Body = io.NopCloser(bytes.NewReader(body))
	return a.app.VerifyWebhookRequest(r)
}
