package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the booking counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BookingsInitiated   prometheus.Counter
	BookingsConfirmed   prometheus.Counter
	BookingsCancelled   *prometheus.CounterVec
	TicketsIssued       prometheus.Counter
	CapacityRejections  *prometheus.CounterVec
	OTPVerifications    *prometheus.CounterVec
	TicketScans         *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BookingsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "bookings_initiated_total",
			Help:      "Bookings created in pending_confirmation.",
		}),
		BookingsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "bookings_confirmed_total",
			Help:      "Bookings confirmed with an OTP.",
		}),
		BookingsCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings moved to cancelled, by reason.",
		}, []string{"reason"}),
		TicketsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "tickets_issued_total",
			Help:      "Tickets minted for confirmed bookings.",
		}),
		CapacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "capacity_rejections_total",
			Help:      "Requests rejected for insufficient capacity, by stage.",
		}, []string{"stage"}),
		OTPVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "otp_verifications_total",
			Help:      "OTP verifications by outcome.",
		}, []string{"outcome"}),
		TicketScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "tickets_scanned_total",
			Help:      "Ticket scans by outcome.",
		}, []string{"outcome"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventbooking",
			Name:      "notifications_failed_total",
			Help:      "Notifications that could not be handed to the gateway.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BookingsInitiated,
			m.BookingsConfirmed,
			m.BookingsCancelled,
			m.TicketsIssued,
			m.CapacityRejections,
			m.OTPVerifications,
			m.TicketScans,
			m.NotificationsFailed,
		)
	}
	return m
}

func (m *Metrics) Initiated() {
	if m == nil {
		return
	}
	m.BookingsInitiated.Inc()
}

func (m *Metrics) Confirmed(tickets int) {
	if m == nil {
		return
	}
	m.BookingsConfirmed.Inc()
	m.TicketsIssued.Add(float64(tickets))
}

func (m *Metrics) Cancelled(reason string) {
	if m == nil {
		return
	}
	m.BookingsCancelled.WithLabelValues(reason).Inc()
}

func (m *Metrics) CapacityRejected(stage string) {
	if m == nil {
		return
	}
	m.CapacityRejections.WithLabelValues(stage).Inc()
}

func (m *Metrics) OTPVerified(outcome string) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Scanned(outcome string) {
	if m == nil {
		return
	}
	m.TicketScans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationFailed(kind string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.WithLabelValues(kind).Inc()
}
