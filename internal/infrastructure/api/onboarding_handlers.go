package api

import (
	"net/http"

	"archie-core-sync-layer/internal/application"
	"archie-core-sync-layer/internal/domain"

	"github.com/go-chi/chi/v5"
)

type createTemplateRequest struct {
	ConnectionID string `json:"connection_id"`
	Name         string `json:"name"`
}

type instantiateTemplateRequest struct {
	Name        string             `json:"name"`
	Destination destinationRequest `json:"destination"`
	LocationID  string             `json:"location_id"`
}

type createInviteRequest struct {
	Name            string `json:"name"`
	DestinationShop string `json:"destination_shop"`
	Email           string `json:"email"`
}

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.Templates.List(r.Context(), domain.ShopFromContext(r.Context()))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	t, err := h.Templates.CreateFromConnection(r.Context(), domain.ShopFromContext(r.Context()), req.ConnectionID, req.Name)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Templates.Delete(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) instantiateTemplate(w http.ResponseWriter, r *http.Request) {
	var req instantiateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	conn, err := h.Templates.Instantiate(r.Context(), domain.ShopFromContext(r.Context()), chi.URLParam(r, "id"), application.InstantiateTemplateInput{
		Name:        req.Name,
		Destination: req.Destination.credentials(),
		LocationID:  req.LocationID,
	})
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn.Summary())
}

func (h *handlers) listInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.Invites.List(r.Context(), domain.ShopFromContext(r.Context()))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invites": invites})
}

func (h *handlers) createInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	invite, err := h.Invites.Create(r.Context(), application.CreateInviteInput{
		InstallationShop: domain.ShopFromContext(r.Context()),
		Name:             req.Name,
		DestinationShop:  req.DestinationShop,
		Email:            req.Email,
	})
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}
