package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveResolution("image", "found")
	m.ObserveProbe("video", "found")
	m.ObserveCache(true)
	m.ObserveFetchAttempt("image", "success")
	m.ObserveFetch(true, 10, time.Second)
	m.ObserveDelivery("telegram", nil)
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveResolution("video", "found")
	m.ObserveResolution("video", "found")
	m.ObserveCache(false)
	m.ObserveDelivery("s3", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("video", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("s3", "failure")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveProbe("image", "not_found")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `pinfetch_probes_total{branch="image",result="not_found"} 1`))
}
