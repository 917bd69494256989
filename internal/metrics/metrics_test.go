package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordTick()
	m.RecordTick()
	m.RecordSignalDetected("Long")
	m.RecordLedgerWrite(nil)
	m.RecordLedgerWrite(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignalsDetected.WithLabelValues("Long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerWrites.WithLabelValues("error")))

	// Two instances must not collide on registration.
	assert.NotPanics(t, func() { New() })
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTick()
		m.RecordBusDropped()
		m.SubscriberConnected()
		m.RecordLedgerWrite(nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordBucket()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "watcher_buckets_finalized_total 1"))
}
