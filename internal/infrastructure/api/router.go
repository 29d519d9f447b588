// Package api exposes the sync layer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"archie-core-sync-layer/internal/application"
	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// ConnectionManager is the connection surface of the API.
type ConnectionManager interface {
	Create(ctx context.Context, input application.CreateConnectionInput) (*domain.Connection, error)
	List(ctx context.Context, shop string) (*application.ConnectionList, error)
	Get(ctx context.Context, shop, id string) (*domain.Connection, error)
	Pause(ctx context.Context, shop, id string) (*domain.Connection, error)
	Resume(ctx context.Context, shop, id string) (*domain.Connection, error)
	Delete(ctx context.Context, shop, id string) error
}

// SyncTrigger enqueues manual jobs.
type SyncTrigger interface {
	Enqueue(ctx context.Context, shop, connectionID string, jobType domain.JobType) (*domain.SyncJob, error)
}

// Telemetry is the read side of job activity.
type Telemetry interface {
	GetProgress(ctx context.Context, shop, connectionID string) (*domain.Progress, error)
	GetHistory(ctx context.Context, shop, connectionID string, limit int) ([]*domain.SyncJob, error)
	GetHealth(ctx context.Context, shop, connectionID string, windowHours int) (*domain.HealthReport, error)
	Preview(ctx context.Context, shop, connectionID string, limit int) (*domain.Preview, error)
	ExportLogs(ctx context.Context, shop, connectionID string) ([]*domain.LogEntry, error)
}

// Templates manages saved connection configurations.
type Templates interface {
	CreateFromConnection(ctx context.Context, shop, connectionID, name string) (*domain.Template, error)
	List(ctx context.Context, shop string) ([]*domain.Template, error)
	Delete(ctx context.Context, shop, id string) error
	Instantiate(ctx context.Context, shop, id string, input application.InstantiateTemplateInput) (*domain.Connection, error)
}

// Invites issues and lists retailer invites.
type Invites interface {
	Create(ctx context.Context, input application.CreateInviteInput) (*domain.Invite, error)
	List(ctx context.Context, shop string) ([]*domain.Invite, error)
}

// Authorizer runs the install handshake.
type Authorizer interface {
	BeginAuthorization(ctx context.Context, shop, inviteToken string) (string, error)
	CompleteAuthorization(ctx context.Context, params application.CallbackParams) (*domain.Installation, error)
	GetInstallationStatus(ctx context.Context, shop string) (*domain.InstallationStatus, error)
}

// WebhookVerifier checks the platform signature of a webhook delivery.
type WebhookVerifier interface {
	VerifyWebhook(r *http.Request, body []byte) bool
}

// WebhookDispatcher routes verified webhook events.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, event *domain.WebhookEvent) error
}

// EventSource subscribes to live job events.
type EventSource interface {
	Subscribe(ctx context.Context, filter *pubsub.JobEventFilter) *pubsub.JobEventChannel
}

// Dependencies are everything the router serves.
type Dependencies struct {
	Connections ConnectionManager
	Sync        SyncTrigger
	Telemetry   Telemetry
	Templates   Templates
	Invites     Invites
	Auth        Authorizer
	Verifier    WebhookVerifier
	Webhooks    WebhookDispatcher
	Events      EventSource
	Metrics     http.Handler
	Logger      zerolog.Logger

	// PostInstallURL returns where a merchant lands after a successful
	// install. Defaults to the shop's admin apps page.
	PostInstallURL func(shop string) string
	SwaggerFile    string
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Dependencies) http.Handler {
	if deps.PostInstallURL == nil {
		deps.PostInstallURL = func(shop string) string { return "https://" + shop + "/admin/apps" }
	}
	if deps.SwaggerFile == "" {
		deps.SwaggerFile = "./docs/swagger.json"
	}
	h := &handlers{Dependencies: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, deps.SwaggerFile)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Get("/auth/shopify", h.beginAuth)
	r.Get("/auth/callback", h.authCallback)
	r.Post("/webhooks/shopify", h.webhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(shopDomainMiddleware)

		r.Get("/installation", h.installationStatus)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", h.listConnections)
			r.Post("/", h.createConnection)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getConnection)
				r.Delete("/", h.deleteConnection)
				r.Post("/sync", h.triggerSync)
				r.Post("/pause", h.pauseConnection)
				r.Post("/resume", h.resumeConnection)
				r.Get("/progress", h.progress)
				r.Get("/history", h.history)
				r.Get("/health", h.health)
				r.Get("/preview", h.preview)
				r.Get("/logs/export", h.exportLogs)
				r.Get("/events", h.events)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.listTemplates)
			r.Post("/", h.createTemplate)
			r.Delete("/{id}", h.deleteTemplate)
			r.Post("/{id}/instantiate", h.instantiateTemplate)
		})

		r.Route("/invites", func(r chi.Router) {
			r.Get("/", h.listInvites)
			r.Post("/", h.createInvite)
		})
	})

	return r
}

type handlers struct {
	Dependencies
}
