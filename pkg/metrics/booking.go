package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics records outcomes of booking and check-in operations.
type BookingMetrics struct {
	created   *prometheus.CounterVec
	conflicts prometheus.Counter
	checkIns  *prometheus.CounterVec
	slotQuery prometheus.Histogram
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appointments_created_total",
		Help: "Appointments created, labelled by payment type.",
	}, []string{"payment_type"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "booking_conflicts_total",
		Help: "Booking attempts that lost the commit-time slot race.",
	})
	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "check_ins_total",
		Help: "Check-in redemptions, labelled by outcome.",
	}, []string{"outcome"})
	slotQuery := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_query_seconds",
		Help:    "Duration of availability slot queries in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(created, conflicts, checkIns, slotQuery)
	return &BookingMetrics{
		created:   created,
		conflicts: conflicts,
		checkIns:  checkIns,
		slotQuery: slotQuery,
	}
}

// IncCreated increments the appointment counter for the payment type.
func (b *BookingMetrics) IncCreated(paymentType string) {
	if b == nil || b.created == nil {
		return
	}
	b.created.WithLabelValues(normalizeLabel(paymentType)).Inc()
}

// IncConflict increments the lost-slot-race counter.
func (b *BookingMetrics) IncConflict() {
	if b == nil || b.conflicts == nil {
		return
	}
	b.conflicts.Inc()
}

// IncCheckIn increments the redemption counter for the outcome.
func (b *BookingMetrics) IncCheckIn(outcome string) {
	if b == nil || b.checkIns == nil {
		return
	}
	b.checkIns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveSlotQuery records the duration of one availability query.
func (b *BookingMetrics) ObserveSlotQuery(duration time.Duration) {
	if b == nil || b.slotQuery == nil {
		return
	}
	b.slotQuery.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
