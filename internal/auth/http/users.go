package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

type UsersHandler struct {
	UserService        *service.UserService
	RolesService       *service.RolesService
	ApplicationService *service.ApplicationService
}

// userResponse is the serialized directory entry. The password hash never
// leaves the service.
type userResponse struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Status              string     `json:"status"`
	LastLogin           *time.Time `json:"lastLogin,omitempty"`
	PasswordLastChanged *time.Time `json:"passwordLastChanged,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		Name:                u.Name,
		Email:               u.Email,
		Status:              string(u.Status),
		LastLogin:           u.LastLogin,
		PasswordLastChanged: u.PasswordLastChanged,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	users, total, err := h.UserService.ListUsers(ctx, store.ListUsersParams{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Status: q.Get("status"),
		Role:   q.Get("role"),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list users", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to list users")
		return
	}

	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"users": out,
		"total": total,
	})
}

func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u, err := h.UserService.GetUserByID(ctx, r.PathValue("id"))
	if err != nil {
		writeUserError(w, ctx, err, "failed to fetch user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name and email are required")
		return
	}

	u, password, err := h.UserService.CreateUser(ctx, req.Name, req.Email, req.Password, req.Status)
	if err != nil {
		writeUserError(w, ctx, err, "failed to create user")
		return
	}

	resp := map[string]any{"user": toUserResponse(u)}
	if req.Password == "" {
		// Generated credential, surfaced exactly once.
		resp["generatedPassword"] = password
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

type updateUserRequest struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
}

func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	u, err := h.UserService.UpdateUser(ctx, r.PathValue("id"), req.Name, req.Email, req.Status)
	if err != nil {
		writeUserError(w, ctx, err, "failed to update user")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(u))
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (h *UsersHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil || len(req.Password) < 8 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "password of at least 8 characters is required")
		return
	}

	if err := h.UserService.UpdatePassword(ctx, r.PathValue("id"), req.Password); err != nil {
		writeUserError(w, ctx, err, "failed to update password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.UserService.DeleteUser(ctx, r.PathValue("id")); err != nil {
		writeUserError(w, ctx, err, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assignments, err := h.RolesService.ListUserRoles(ctx, r.PathValue("id"))
	if err != nil {
		writeUserError(w, ctx, err, "failed to list user roles")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"roles": assignments})
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
}

func (h *UsersHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RoleID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "roleId is required")
		return
	}

	if err := h.RolesService.AssignRole(ctx, r.PathValue("id"), req.RoleID); err != nil {
		writeUserError(w, ctx, err, "failed to assign role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) HandleUnassignRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.RolesService.UnassignRole(ctx, r.PathValue("id"), r.PathValue("roleId")); err != nil {
		writeUserError(w, ctx, err, "failed to unassign role")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) HandleListApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assignments, err := h.ApplicationService.ListUserApplications(ctx, r.PathValue("id"))
	if err != nil {
		writeUserError(w, ctx, err, "failed to list user applications")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"applications": assignments})
}

func writeUserError(w http.ResponseWriter, ctx context.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, service.ErrRoleNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "role not found")
	case errors.Is(err, service.ErrApplicationNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "application not found")
	case errors.Is(err, service.ErrEmailTaken):
		httpx.WriteError(w, http.StatusConflict, "conflict", "email already in use")
	case errors.Is(err, service.ErrInvalidStatus):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid status")
	default:
		slogx.FromContext(ctx).Error(fallback, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", fallback)
	}
}
