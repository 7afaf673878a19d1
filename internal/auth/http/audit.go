package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

type AuditHandler struct {
	AuditService *service.AuditService
}

type auditEntryResponse struct {
	ID            string         `json:"id"`
	Event         string         `json:"event"`
	UserID        string         `json:"userId,omitempty"`
	ApplicationID string         `json:"applicationId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// HandleRecent serves the activity feed: the newest audit entries, newest
// first.
func (h *AuditHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	entries, err := h.AuditService.ListRecent(ctx, limit)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list audit entries", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to list audit entries")
		return
	}
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse{
			ID:            e.ID,
			Event:         e.Event,
			UserID:        e.UserID,
			ApplicationID: e.ApplicationID,
			Details:       e.Details,
			IPAddress:     e.IPAddress,
			UserAgent:     e.UserAgent,
			CreatedAt:     e.CreatedAt,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
