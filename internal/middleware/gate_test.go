package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"
	"aetheris-web/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveGate(t *testing.T, path string, out *domain.Outcome) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	handler := Gate(MustRouteTable(DefaultRules()))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if out != nil {
		req = req.WithContext(WithSession(req.Context(), *out))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, reached
}

func TestGate_RedirectsDashboardToLogin(t *testing.T) {
	before := promtest.ToFloat64(observability.GateDecisions.WithLabelValues("redirect"))

	w, reached := serveGate(t, "/dashboard/analytics", nil)

	assert.False(t, reached)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard%2Fanalytics", w.Header().Get("Location"))
	assert.Equal(t, before+1, promtest.ToFloat64(observability.GateDecisions.WithLabelValues("redirect")))
}

func TestGate_DeniesProtectedAPI(t *testing.T) {
	w, reached := serveGate(t, "/api/reports", nil)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestGate_AllowsWithSession(t *testing.T) {
	tests := []struct {
		name string
		out  domain.Outcome
	}{
		{"valid_token", domain.Valid(testutil.NewTestToken())},
		{"errored_token", domain.Errored(testutil.NewTestToken(testutil.WithRefreshError()))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, reached := serveGate(t, "/dashboard", &tt.out)

			assert.True(t, reached)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestGate_AllowsUnprotectedWithoutSession(t *testing.T) {
	for _, path := range []string{"/", "/login", "/api/auth/csrf", "/static/app.js"} {
		t.Run(path, func(t *testing.T) {
			w, reached := serveGate(t, path, nil)

			assert.True(t, reached)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
