package http

import (
	"net/http"
	"time"

	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/httpx"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// LivezHandler always answers 200 while the process is up.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, healthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler answers 200 only when the critical dependencies respond.
func ReadyzHandler(startTime time.Time, version string, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"database": "ok"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, healthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
