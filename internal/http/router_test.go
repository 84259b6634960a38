package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/leadflow/backend/internal/config"
	"github.com/leadflow/backend/internal/http/middleware"
	"github.com/leadflow/backend/internal/memstore"
	"github.com/leadflow/backend/internal/metrics"
	"github.com/leadflow/backend/internal/service"
)

func newRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := memstore.New()
	m := metrics.New()
	eng := service.NewEngine(store, service.Options{Metrics: m, Logger: zerolog.Nop()})
	return Router(cfg, Deps{
		Store:      store,
		Service:    eng.Service,
		Aggregator: eng.Aggregator,
		Metrics:    m,
		Logger:     zerolog.Nop(),
	})
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_AdminRoutesRequireKey(t *testing.T) {
	r := newRouter(config.Config{AdminKey: "secret"})

	w := serve(r, http.MethodPost, "/api/assignments", `{"lead_identifier":"lead-1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// No consultants exist, so an authorized request reaches selection and fails there.
	w = serve(r, http.MethodPost, "/api/assignments", `{"lead_identifier":"lead-1"}`, map[string]string{middleware.AdminKeyHeader: "secret"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), string(service.KindNoEligibleConsultants))

	w = serve(r, http.MethodGet, "/api/consultants", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RateLimitsAdminRoutes(t *testing.T) {
	r := newRouter(config.Config{RateLimitRPM: 1, RateLimitBurst: 1})

	w := serve(r, http.MethodPost, "/api/debug/matches", `{}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = serve(r, http.MethodPost, "/api/debug/matches", `{}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not limited.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", "", nil).Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newRouter(config.Config{})
	serve(r, http.MethodGet, "/healthz", "", nil)

	w := serve(r, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}

func TestRouter_RequestIDHeader(t *testing.T) {
	r := newRouter(config.Config{})
	w := serve(r, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}
