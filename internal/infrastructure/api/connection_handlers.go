package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"archie-core-sync-layer/internal/application"
	"archie-core-sync-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

// destinationRequest carries destination secrets, which DestinationCredentials
// never renders in responses.
type destinationRequest struct {
	ShopDomain     string `json:"shop_domain"`
	AccessToken    string `json:"access_token"`
	BaseURL        string `json:"base_url"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

func (d destinationRequest) credentials() domain.DestinationCredentials {
	return domain.DestinationCredentials{
		ShopDomain:     d.ShopDomain,
		AccessToken:    d.AccessToken,
		BaseURL:        d.BaseURL,
		ConsumerKey:    d.ConsumerKey,
		ConsumerSecret: d.ConsumerSecret,
	}
}

type createConnectionRequest struct {
	Name        string             `json:"name"`
	Platform    domain.Platform    `json:"platform"`
	Destination destinationRequest `json:"destination"`
	LocationID  string             `json:"location_id"`
	Rules       domain.SyncRules   `json:"rules"`
}

type syncRequest struct {
	Type domain.JobType `json:"type"`
}

func (h *handlers) listConnections(w http.ResponseWriter, r *http.Request) {
	list, err := h.Connections.List(r.Context(), domain.ShopFromContext(r.Context()))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) createConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	conn, err := h.Connections.Create(r.Context(), application.CreateConnectionInput{
		InstallationShop: domain.ShopFromContext(r.Context()),
		Name:             req.Name,
		Platform:         req.Platform,
		Destination:      req.Destination.credentials(),
		LocationID:       req.LocationID,
		Rules:            req.Rules,
	})
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn.Summary())
}

func (h *handlers) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Connections.Get(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (h *handlers) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.Connections.Delete(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pauseConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Connections.Pause(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Summary())
}

func (h *handlers) resumeConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Connections.Resume(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Summary())
}

// triggerSync enqueues a manual job. An empty body means full_sync.
func (h *handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	req := syncRequest{Type: domain.JobFullSync}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, h.Logger, r, err)
			return
		}
		if req.Type == "" {
			req.Type = domain.JobFullSync
		}
	}
	if !req.Type.Valid() {
		respondError(w, h.Logger, r, domain.NewValidationError("type", "must be full_sync, incremental or preview"))
		return
	}
	job, err := h.Sync.Enqueue(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"), req.Type)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.Telemetry.GetProgress(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	jobs, err := h.Telemetry.GetHistory(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	window, err := queryInt(r, "window_hours", 0)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	report, err := h.Telemetry.GetHealth(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"), window)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) preview(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	p, err := h.Telemetry.Preview(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

var logColumns = []string{"created_at", "severity", "code", "sku", "job_id", "message"}

// exportLogs streams every log entry of the connection as CSV.
func (h *handlers) exportLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.Telemetry.ExportLogs(r.Context(), domain.ShopFromContext(r.Context()), id)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "connection-"+id+"-logs.csv"))
	cw := csv.NewWriter(w)
	cw.Write(logColumns)
	for _, e := range entries {
		cw.Write([]string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.Severity),
			string(e.Code),
			e.SKU,
			e.JobID,
			e.Message,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.Logger.Warn().Err(err).Str("connectionId", id).Msg("Failed to write log export")
	}
}
