package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Initiated()
	m.Confirmed(4)
	m.Cancelled("lapsed")
	m.CapacityRejected("confirm")
	m.OTPVerified("invalid")
	m.Scanned("ok")
	m.NotificationFailed("otp")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsInitiated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsConfirmed))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TicketsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsCancelled.WithLabelValues("lapsed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapacityRejections.WithLabelValues("confirm")))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 8, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Initiated()
		m.Confirmed(2)
		m.Cancelled("withdrawn")
		m.NotificationFailed("otp")
	})
}
