package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/authcorehq/authcore/internal/auth/metrics"
	"github.com/authcorehq/authcore/internal/auth/service"
	"github.com/authcorehq/authcore/pkg/httpx"
	"github.com/authcorehq/authcore/pkg/slogx"
)

type LoginHandler struct {
	TokenService *service.TokenService
	Metrics      *metrics.Collector
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirectUri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.ClientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email, password, and client_id are required")
		return
	}

	bundle, err := h.TokenService.Login(ctx, service.LoginParams{
		Email:       req.Email,
		Password:    req.Password,
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		State:       req.State,
		IPAddress:   httpx.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, log, err)
		return
	}

	h.record(metrics.OutcomeSuccess)
	if h.Metrics != nil {
		h.Metrics.RecordTokenIssued("access")
		h.Metrics.RecordTokenIssued("refresh")
	}
	httpx.WriteJSON(w, http.StatusOK, bundle)
}

func (h *LoginHandler) writeLoginError(w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		h.record(metrics.OutcomeFailed)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, service.ErrUnknownClient):
		h.record(metrics.OutcomeUnknownClient)
		httpx.WriteError(w, http.StatusUnauthorized, "unknown_client", "unknown client application")
	case errors.Is(err, service.ErrApplicationNotAssigned):
		h.record(metrics.OutcomeDenied)
		httpx.WriteError(w, http.StatusUnauthorized, "application_not_assigned", err.Error())
	case errors.Is(err, service.ErrTooManyAttempts):
		h.record(metrics.OutcomeThrottled)
		httpx.WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "too many failed attempts, try again later")
	default:
		log.Error("login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "login failed")
	}
}

func (h *LoginHandler) record(outcome string) {
	if h.Metrics != nil {
		h.Metrics.RecordLogin(outcome)
	}
}

type RefreshHandler struct {
	TokenService *service.TokenService
	Metrics      *metrics.Collector
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	bundle, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is invalid or expired")
			return
		}
		log.Error("refresh failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "refresh failed")
		return
	}

	if h.Metrics != nil {
		h.Metrics.RecordTokenIssued("access")
	}
	httpx.WriteJSON(w, http.StatusOK, bundle)
}

type LogoutHandler struct {
	TokenService *service.TokenService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	if err := h.TokenService.Logout(ctx, req.RefreshToken); err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_refresh_token", "refresh token is invalid or expired")
			return
		}
		log.Error("logout failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "logout failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
