package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShieldMetrics(t *testing.T) {

	assert := assert.New(t)
	m := New()

	m.Emit(shield.AuditEvent{Type: shield.EventQueued})
	m.Emit(shield.AuditEvent{Type: shield.EventQueued})
	m.Emit(shield.AuditEvent{Type: shield.EventCompleted})
	m.SetShieldState(2, true)

	assert.Equal(2.0, testutil.ToFloat64(m.ShieldEvents.WithLabelValues("queued")))
	assert.Equal(1.0, testutil.ToFloat64(m.ShieldEvents.WithLabelValues("completed")))
	assert.Equal(2.0, testutil.ToFloat64(m.ShieldQueueLength))
	assert.Equal(1.0, testutil.ToFloat64(m.ShieldActive))

	m.SetShieldState(0, false)
	assert.Equal(0.0, testutil.ToFloat64(m.ShieldActive))
}

func TestCloudMetrics(t *testing.T) {

	assert := assert.New(t)
	m := New()

	m.RecordCloudRequest("get_stats", 120*time.Millisecond, nil)
	m.RecordCloudRequest("get_stats", time.Second, errors.New("boom"))
	m.RecordBreakerState(gobreaker.StateClosed, gobreaker.StateOpen)

	assert.Equal(1.0, testutil.ToFloat64(m.CloudRequests.WithLabelValues("get_stats", "success")))
	assert.Equal(1.0, testutil.ToFloat64(m.CloudRequests.WithLabelValues("get_stats", "error")))
	assert.Equal(2.0, testutil.ToFloat64(m.CircuitBreakerState))
}

func TestHandler(t *testing.T) {

	require := require.New(t)
	m := New()
	m.Emit(shield.AuditEvent{Type: shield.EventStarted})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(http.StatusOK, rec.Code)
	require.True(strings.Contains(rec.Body.String(), `oigshield_shield_events_total{type="started"} 1`))
}
