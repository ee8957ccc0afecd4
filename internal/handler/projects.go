package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/relayworks/threadrelay/internal/middleware"
	"github.com/relayworks/threadrelay/internal/model"
	"github.com/relayworks/threadrelay/internal/registry"
	"github.com/relayworks/threadrelay/pkg/logger"
)

// ProjectHandler handles the tenant management endpoints.
type ProjectHandler struct {
	registry registry.TenantRegistry
	logger   *logger.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(reg registry.TenantRegistry, log *logger.Logger) *ProjectHandler {
	return &ProjectHandler{
		registry: reg,
		logger:   log,
	}
}

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateProjectID(req.ProjectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateChannelID(req.ChannelID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateAPIURL(req.APIURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateOwnerEmail(req.OwnerEmail); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.APIToken == "" {
		writeError(w, http.StatusBadRequest, "api_token cannot be empty")
		return
	}

	project := model.Project{
		ProjectID:  req.ProjectID,
		APIToken:   req.APIToken,
		APIURL:     req.APIURL,
		OwnerEmail: req.OwnerEmail,
		Status:     model.ProjectStatusActive,
	}

	if err := h.registry.CreateProject(r.Context(), project, req.ChannelID); err != nil {
		h.logger.Error("failed to create project", zap.String("project_id", req.ProjectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "project created"})
}

// List handles GET /api/v1/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	cursor := r.URL.Query().Get("cursor")

	projects, next, err := h.registry.ListProjects(r.Context(), limit, cursor)
	if err != nil {
		h.logger.Error("failed to list projects", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	// Tokens stay server-side.
	for i := range projects {
		projects[i].APIToken = ""
	}

	writeJSON(w, http.StatusOK, &model.ListProjectsResponse{
		Projects:   projects,
		NextCursor: next,
	})
}

// Channels handles GET /api/v1/projects/{id}/channels
func (h *ProjectHandler) Channels(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := middleware.ValidateProjectID(projectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	links, err := h.registry.ChannelsForProject(r.Context(), projectID)
	if err != nil {
		h.logger.Error("failed to list channels", zap.String("project_id", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	writeJSON(w, http.StatusOK, links)
}

// Delete handles DELETE /api/v1/projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := middleware.ValidateProjectID(projectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.DeleteProject(r.Context(), projectID); err != nil {
		h.logger.Error("failed to delete project", zap.String("project_id", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// LinkChannels handles POST /api/v1/projects/{id}/channels
func (h *ProjectHandler) LinkChannels(w http.ResponseWriter, r *http.Request) {
	h.bulkLink(w, r, h.registry.LinkChannels, "failed to link channels")
}

// UnlinkChannels handles DELETE /api/v1/projects/{id}/channels
func (h *ProjectHandler) UnlinkChannels(w http.ResponseWriter, r *http.Request) {
	h.bulkLink(w, r, h.registry.UnlinkChannels, "failed to unlink channels")
}

func (h *ProjectHandler) bulkLink(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, links []model.ChannelLink) error,
	failMsg string,
) {
	projectID := chi.URLParam(r, "id")
	if err := middleware.ValidateProjectID(projectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.LinkChannelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.ChannelIDs) == 0 {
		writeError(w, http.StatusBadRequest, "channel_ids cannot be empty")
		return
	}

	links := make([]model.ChannelLink, 0, len(req.ChannelIDs))
	for _, chID := range req.ChannelIDs {
		if err := middleware.ValidateChannelID(chID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		links = append(links, model.ChannelLink{ChannelID: chID, ProjectID: projectID})
	}

	if err := op(r.Context(), links); err != nil {
		h.logger.Error(failMsg, zap.String("project_id", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, failMsg)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// UpdateStatus handles PATCH /api/v1/projects/{id}/status
func (h *ProjectHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := middleware.ValidateProjectID(projectID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status != model.ProjectStatusActive && req.Status != model.ProjectStatusInactive {
		writeError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}

	found, err := h.registry.SetProjectStatus(r.Context(), projectID, req.Status)
	if err != nil {
		h.logger.Error("failed to update status", zap.String("project_id", projectID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
