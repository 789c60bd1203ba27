package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Reservation("ok")
	m.Reservation("ok")
	m.Reservation("slot_full")
	m.Waitlist("expired", 3)
	m.Waitlist("expired", 0)
	m.SlotsGenerated(6)
	m.Job("generate-slots", false, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("slot_full")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.waitlist.WithLabelValues("expired")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.slotsGenerated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("generate-slots", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reservation("ok")
		m.Booking("pending")
		m.Job("x", true, time.Millisecond)
		m.HTTPRequest("GET", "/healthz", "200", time.Millisecond)
	})
	assert.NotNil(t, m.Handler())
}
