package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	require.NotPanics(t, Init)
}

func TestObservers_DoNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		ObserveHTTPRequest(http.MethodGet, "/v1/scrape/jobs", http.StatusOK, 5*time.Millisecond)
		ObserveJobTransition("company", "completed")
		ObserveGatewayRequest("trigger", "ok")
		ObservePollerTick(3)
		ObserveImportOutcome("profile", "saved")
	})
}

func TestMiddleware_RecordsAndServes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/people", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/people", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandler_ServesMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "linkcrm_")
}
