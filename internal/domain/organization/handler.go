package organization

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Handler exposes organization CRUD over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates an organization handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the organization endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/organizations", h.Create)
	r.Get("/organizations", h.List)
	r.Get("/organizations/{orgID}", h.Get)
	r.Put("/organizations/{orgID}", h.Update)
	r.Get("/organizations/{orgID}/divisions", h.listNames(func(o *Organization) []string { return o.Divisions }))
	r.Put("/organizations/{orgID}/divisions", h.setNames(h.svc.SetDivisions))
	r.Get("/organizations/{orgID}/clusters", h.listNames(func(o *Organization) []string { return o.Clusters }))
	r.Put("/organizations/{orgID}/clusters", h.setNames(h.svc.SetClusters))
}

// listNames serves a GET over one of the organization's name lists.
func (h *Handler) listNames(pick func(*Organization) []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid organization id", err)
			return
		}
		org, err := h.svc.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "organization not found", err)
				return
			}
			h.writeError(w, http.StatusInternalServerError, "failed to load organization", err)
			return
		}
		names := pick(org)
		if names == nil {
			names = []string{}
		}
		h.writeJSON(w, http.StatusOK, names)
	}
}

// setNames serves a PUT that replaces one of the organization's name lists.
func (h *Handler) setNames(apply func(context.Context, uuid.UUID, []string) (*Organization, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid organization id", err)
			return
		}
		var names []string
		if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		org, err := apply(r.Context(), id, names)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				h.writeError(w, http.StatusNotFound, "organization not found", err)
				return
			}
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), err)
			return
		}
		h.writeJSON(w, http.StatusOK, org)
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var org Organization
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.svc.Create(r.Context(), &org); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), err)
		return
	}
	h.writeJSON(w, http.StatusCreated, org)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid organization id", err)
		return
	}
	org, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "organization not found", err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load organization", err)
		return
	}
	h.writeJSON(w, http.StatusOK, org)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orgID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid organization id", err)
		return
	}
	var org Organization
	if err := json.NewDecoder(r.Body).Decode(&org); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	org.ID = id
	if err := h.svc.Update(r.Context(), &org); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "organization not found", err)
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), err)
		return
	}
	h.writeJSON(w, http.StatusOK, org)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list organizations", err)
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	h.writeJSON(w, http.StatusOK, orgs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
