package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsAndExposes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(OutcomeSuccess)
	c.RecordLogin(OutcomeFailed)
	c.RecordTokenIssued("access")
	c.RecordHTTPResponse(http.StatusOK)
	c.RecordHTTPDuration(http.MethodPost, "/auth/login", 25*time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	require.Contains(t, out, `authcore_login_outcomes_total{outcome="success"} 1`)
	require.Contains(t, out, `authcore_login_outcomes_total{outcome="failed"} 1`)
	require.Contains(t, out, `authcore_tokens_issued_total{kind="access"} 1`)
	require.Contains(t, out, `authcore_http_responses_total{status_code="200"} 1`)
	require.Contains(t, out, "authcore_http_duration_seconds_bucket")
}
