package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSelection("skills_based", "exact")
	m.ObserveReassignment("user_request", true, time.Millisecond)
	m.ObserveAggregation(3, nil)
}

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveSelection("", "NO_SKILL_MATCH")
	m.ObserveSelection("skills_based", "exact")
	m.ObserveReassignment("admin_override", false, 5*time.Millisecond)
	m.ObserveAggregation(4, nil)
	m.ObserveAggregation(0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SelectionsTotal.WithLabelValues("none", "NO_SKILL_MATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SelectionsTotal.WithLabelValues("skills_based", "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReassignmentsTotal.WithLabelValues("admin_override", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationRunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationRunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.AggregatedRows))
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/assignments/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/assignments/42", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/assignments/:id", "204")))
}
