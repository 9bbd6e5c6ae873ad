package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveOperation("claim", OutcomeOK, 3*time.Millisecond)
	m.ObserveOperation("claim", OutcomeRejected, time.Millisecond)
	m.ObserveOperation("claim", OutcomeRejected, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LeadOperations.WithLabelValues("claim", OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LeadOperations.WithLabelValues("claim", OutcomeRejected)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("assign", OutcomeOK, time.Millisecond)
	m.SetBucket("all", 3)
	m.CacheHit()
	m.CacheMiss()
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/v1/leads/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/leads/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/leads/:id", "204")))
}
