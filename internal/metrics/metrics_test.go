package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	r := New(false)
	assert.IsType(t, Noop{}, r)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrometheus_Counters(t *testing.T) {
	r := New(true)
	p, ok := r.(*Prometheus)
	require.True(t, ok)

	p.IncRuns("success")
	p.IncRuns("success")
	p.IncRuns("failed")
	p.AddMessagesFetched(250)
	p.IncIdentityLookups("error")
	p.IncIdentityCacheHits()
	p.IncRequestsTotal("/data", 200)
	p.IncRequestsTotal("/data", 503)
	p.ObserveRunDuration(3 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 250.0, testutil.ToFloat64(p.messagesFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.identityLookups.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requestsTotal.WithLabelValues("/data", "5xx")))
}

func TestPrometheus_Handler(t *testing.T) {
	r := New(true)
	r.IncIdentityCacheHits()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), "mentionmap_identity_cache_hits_total 1")
}

func TestStatusBucket(t *testing.T) {
	tests := map[int]string{100: "1xx", 204: "2xx", 302: "3xx", 404: "4xx", 500: "5xx"}
	for code, expected := range tests {
		assert.Equal(t, expected, statusBucket(code))
	}
}
