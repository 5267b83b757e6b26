package metrics

import (
	"errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.Decisions.WithLabelValues("npm", "blocked").Inc()
	m.CacheLookups.WithLabelValues("fresh").Add(2)
	m.ObserveScan("npm", time.Now(), nil)
	m.ObserveScan("npm", time.Now(), errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("npm", "blocked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("fresh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanRequests.WithLabelValues("npm", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScanRequests.WithLabelValues("npm", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScanDuration))

	// A second instance must not collide with the first.
	New()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scangate_decisions_total{ecosystem="npm",outcome="blocked"} 1`)
}
