// Package handler exposes the import wizard over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/demandsight/demand-planner/internal/domain/import/assist"
	importservice "github.com/demandsight/demand-planner/internal/domain/import/service"
	"github.com/demandsight/demand-planner/internal/domain/import/session"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
	"github.com/demandsight/demand-planner/internal/domain/organization"
)

// maxUploadBytes caps the multipart body; files above the service's inline
// threshold are still accepted and answered with a deferral.
const maxUploadBytes = 256 << 20

// ImportHandler handles the import wizard endpoints.
type ImportHandler struct {
	importSvc *importservice.ImportService
	orgSvc    *organization.Service
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(importSvc *importservice.ImportService, orgSvc *organization.Service, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		orgSvc:    orgSvc,
		logger:    logger,
	}
}

// Routes mounts the import endpoints.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/import/sessions", h.StartSession)
	r.Get("/import/sessions/{sessionID}", h.GetSession)
	r.Post("/import/sessions/{sessionID}/analyze", h.Analyze)
	r.Post("/import/sessions/{sessionID}/transpose", h.Transpose)
	r.Post("/import/sessions/{sessionID}/format", h.SetFormat)
	r.Post("/import/sessions/{sessionID}/roles", h.AssignRole)
	r.Post("/import/sessions/{sessionID}/date-range", h.SetDateRange)
	r.Post("/import/sessions/{sessionID}/assist", h.Assist)
	r.Get("/import/sessions/{sessionID}/preview", h.Preview)
	r.Post("/import/sessions/{sessionID}/commit", h.Commit)
}

type startSessionRequest struct {
	OrganizationID string `json:"organizationId"`
}

type startSessionResponse struct {
	SessionID      string `json:"sessionId"`
	OrganizationID string `json:"organizationId"`
}

// StartSession opens an import session bound to an organization's
// capabilities.
func (h *ImportHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid organization id", err)
		return
	}

	caps, err := h.orgSvc.Capabilities(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, organization.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "organization not found", err)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load organization", err)
		return
	}

	sess := h.importSvc.StartSession(orgID, caps)
	h.writeJSON(w, http.StatusCreated, startSessionResponse{
		SessionID:      sess.ID.String(),
		OrganizationID: orgID.String(),
	})
}

type sessionStateResponse struct {
	SessionID string   `json:"sessionId"`
	FileName  string   `json:"fileName,omitempty"`
	Imported  []string `json:"importedFiles"`
}

// GetSession returns the session's bookkeeping state.
func (h *ImportHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	imported := sess.Imported()
	names := make([]string, len(imported))
	for i, rec := range imported {
		names[i] = rec.FileName
	}
	h.writeJSON(w, http.StatusOK, sessionStateResponse{
		SessionID: sess.ID.String(),
		FileName:  sess.FileName(),
		Imported:  names,
	})
}

// Analyze accepts a multipart upload and returns the inferred configuration.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart body", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file field", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload", err)
		return
	}

	result, err := h.importSvc.AnalyzeFile(r.Context(), sess.ID, header.Filename, data)
	if err != nil {
		if errors.Is(err, importservice.ErrStaleFile) {
			h.writeError(w, http.StatusConflict, "upload superseded by a newer file", err)
			return
		}
		h.writeError(w, http.StatusUnprocessableEntity, "failed to analyze file", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Transpose flips the sheet orientation.
func (h *ImportHandler) Transpose(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := h.importSvc.ToggleTranspose(sess.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type setFormatRequest struct {
	DateFormat   string `json:"dateFormat,omitempty"`
	NumberFormat string `json:"numberFormat,omitempty"`
}

// SetFormat applies explicit date and/or number format overrides.
func (h *ImportHandler) SetFormat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setFormatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.DateFormat != "" {
		if err := h.importSvc.SetDateFormat(sess.ID, sniffer.DateFormat(req.DateFormat)); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}
	if req.NumberFormat != "" {
		if err := h.importSvc.SetNumberFormat(sess.ID, sniffer.NumberFormat(req.NumberFormat)); err != nil {
			h.writeServiceError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	Column int    `json:"column"`
	Role   string `json:"role"`
}

type assignRoleResponse struct {
	Requested     string `json:"requested"`
	Applied       string `json:"applied"`
	Reinterpreted bool   `json:"reinterpreted"`
	Reason        string `json:"reason,omitempty"`
}

// AssignRole requests a role for a column. A silently reinterpreted
// assignment still succeeds; the response says what was actually applied.
func (h *ImportHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	assignment, err := h.importSvc.AssignRole(sess.ID, req.Column, req.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assignRoleResponse{
		Requested:     assignment.Requested.String(),
		Applied:       assignment.Applied.String(),
		Reinterpreted: assignment.Reinterpreted,
		Reason:        assignment.Reason,
	})
}

type dateRangeRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SetDateRange re-tags the active period span.
func (h *ImportHandler) SetDateRange(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dateRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.importSvc.SetDateRange(sess.ID, req.Start, req.End); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assist applies the AI collaborator's suggested roles.
func (h *ImportHandler) Assist(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	result, err := h.importSvc.ApplyAssist(r.Context(), sess.ID)
	if err != nil {
		if errors.Is(err, assist.ErrDisabled) {
			h.writeError(w, http.StatusNotImplemented, "assist service not configured", err)
			return
		}
		if errors.Is(err, importservice.ErrStaleFile) {
			h.writeError(w, http.StatusConflict, "suggestion superseded by a newer file", err)
			return
		}
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// defaultPreviewLimit bounds the preview when the client does not ask for a
// specific size.
const defaultPreviewLimit = 100

// Preview returns a bounded normalization pass. A `limit` query parameter
// overrides the default record count.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	limit := defaultPreviewLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = parsed
	}
	result, err := h.importSvc.Preview(sess.ID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type commitRequest struct {
	ConfirmOverwrite bool   `json:"confirmOverwrite"`
	DivisionName     string `json:"divisionName,omitempty"`
}

type commitConflictResponse struct {
	Error                string   `json:"error"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	Supersedes           []string `json:"supersedes,omitempty"`
	ConflictingDivisions []string `json:"conflictingDivisions,omitempty"`
}

// Commit runs the full pipeline and persists the dataset.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	summary, err := h.importSvc.Commit(r.Context(), sess.ID, importservice.CommitOptions{
		ConfirmOverwrite: req.ConfirmOverwrite,
		DivisionName:     req.DivisionName,
	})
	if err != nil {
		var structural *importservice.StructuralError
		if errors.As(err, &structural) {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":      "structural validation failed",
				"violations": structural.Violations,
			})
			return
		}
		var overwrite *importservice.OverwriteRequiredError
		if errors.As(err, &overwrite) {
			h.writeJSON(w, http.StatusConflict, commitConflictResponse{
				Error:                overwrite.Check.Message,
				RequiresConfirmation: true,
				Supersedes:           overwrite.Check.Supersedes,
				ConflictingDivisions: overwrite.Check.ConflictingDivisions,
			})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *ImportHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid session id", err)
		return nil, false
	}
	sess, err := h.importSvc.Session(id)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "session not found", err)
		return nil, false
	}
	return sess, true
}

func (h *ImportHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "session not found", err)
	case errors.Is(err, importservice.ErrNoSheet):
		h.writeError(w, http.StatusConflict, "no file analyzed yet", err)
	default:
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), err)
	}
}

func (h *ImportHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *ImportHandler) writeError(w http.ResponseWriter, status int, message string, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, slog.Any("error", err))
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
