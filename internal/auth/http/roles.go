package http

import (
	"errors"
	"net/http"

	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

type RolesHandler struct {
	RolesService *service.RolesService
}

func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roles, err := h.RolesService.ListAll(ctx)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list roles", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to list roles")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	role, err := h.RolesService.CreateRole(ctx, req.Name, req.Description, req.Permissions)
	if err != nil {
		if errors.Is(err, service.ErrRoleTaken) {
			httpx.WriteError(w, http.StatusConflict, "conflict", "role name already in use")
			return
		}
		slogx.FromContext(ctx).Error("failed to create role", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to create role")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, role)
}

func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.RolesService.DeleteRole(ctx, r.PathValue("id")); err != nil {
		if errors.Is(err, service.ErrRoleNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "role not found")
			return
		}
		slogx.FromContext(ctx).Error("failed to delete role", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to delete role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
