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

type ApplicationsHandler struct {
	ApplicationService *service.ApplicationService
}

// applicationResponse is the serialized registry entry. The secret hash
// never leaves the service.
type applicationResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ClientID        string    `json:"clientId"`
	RedirectURIs    []string  `json:"redirectUris"`
	CORSOrigins     []string  `json:"corsOrigins"`
	AccessTokenTTL  int       `json:"accessTokenLifetime"`
	RefreshTokenTTL int       `json:"refreshTokenLifetime"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toApplicationResponse(a domain.Application) applicationResponse {
	return applicationResponse{
		ID:              a.ID,
		Name:            a.Name,
		ClientID:        a.ClientID,
		RedirectURIs:    a.RedirectURIs,
		CORSOrigins:     a.CORSOrigins,
		AccessTokenTTL:  a.AccessTokenTTL,
		RefreshTokenTTL: a.RefreshTokenTTL,
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

type applicationRequest struct {
	Name            string   `json:"name,omitempty"`
	RedirectURIs    []string `json:"redirectUris,omitempty"`
	CORSOrigins     []string `json:"corsOrigins,omitempty"`
	AccessTokenTTL  int      `json:"accessTokenLifetime,omitempty"`
	RefreshTokenTTL int      `json:"refreshTokenLifetime,omitempty"`
	Status          string   `json:"status,omitempty"`
}

func (req applicationRequest) params() service.ApplicationParams {
	return service.ApplicationParams{
		Name:            req.Name,
		RedirectURIs:    req.RedirectURIs,
		CORSOrigins:     req.CORSOrigins,
		AccessTokenTTL:  req.AccessTokenTTL,
		RefreshTokenTTL: req.RefreshTokenTTL,
		Status:          req.Status,
	}
}

func (h *ApplicationsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	apps, total, err := h.ApplicationService.ListApplications(ctx, store.ListApplicationsParams{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
		Status: q.Get("status"),
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list applications", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to list applications")
		return
	}

	out := make([]applicationResponse, len(apps))
	for i, a := range apps {
		out[i] = toApplicationResponse(a)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"applications": out,
		"total":        total,
	})
}

func (h *ApplicationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	a, err := h.ApplicationService.GetApplicationByID(ctx, r.PathValue("id"))
	if err != nil {
		writeApplicationError(w, ctx, err, "failed to fetch application")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toApplicationResponse(a))
}

func (h *ApplicationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req applicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	a, secret, err := h.ApplicationService.CreateApplication(ctx, req.params())
	if err != nil {
		writeApplicationError(w, ctx, err, "failed to create application")
		return
	}

	// The plaintext secret is shown once and never again.
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"application":  toApplicationResponse(a),
		"clientSecret": secret,
	})
}

func (h *ApplicationsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req applicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	a, err := h.ApplicationService.UpdateApplication(ctx, r.PathValue("id"), req.params())
	if err != nil {
		writeApplicationError(w, ctx, err, "failed to update application")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toApplicationResponse(a))
}

func (h *ApplicationsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.ApplicationService.DeleteApplication(ctx, r.PathValue("id")); err != nil {
		writeApplicationError(w, ctx, err, "failed to delete application")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ApplicationsHandler) HandleRotateSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	secret, err := h.ApplicationService.RotateSecret(ctx, r.PathValue("id"))
	if err != nil {
		writeApplicationError(w, ctx, err, "failed to rotate client secret")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"clientSecret": secret})
}

func (h *ApplicationsHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assignments, err := h.ApplicationService.ListApplicationUsers(ctx, r.PathValue("id"))
	if err != nil {
		writeApplicationError(w, ctx, err, "failed to list application users")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": assignments})
}

type assignUserRequest struct {
	UserID string `json:"userId"`
}

func (h *ApplicationsHandler) HandleAssignUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignUserRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}

	if err := h.ApplicationService.AssignUser(ctx, req.UserID, r.PathValue("id")); err != nil {
		writeApplicationError(w, ctx, err, "failed to assign user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ApplicationsHandler) HandleUnassignUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.ApplicationService.UnassignUser(ctx, r.PathValue("userId"), r.PathValue("id")); err != nil {
		writeApplicationError(w, ctx, err, "failed to unassign user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeApplicationError(w http.ResponseWriter, ctx context.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrApplicationNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "application not found")
	case errors.Is(err, service.ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "user not found")
	case errors.Is(err, service.ErrInvalidStatus):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid status")
	default:
		slogx.FromContext(ctx).Error(fallback, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", fallback)
	}
}
