package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gastbokning"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)

	availabilityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Count of availability checks by result.",
		},
		[]string{"result"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by status.",
		},
		[]string{"status"},
	)

	bookingStatusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changed_total",
			Help:      "Count of booking status changes by new status.",
		},
		[]string{"status"},
	)

	reportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Count of billing reports rendered by format.",
		},
		[]string{"format"},
	)

	reportDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_deliveries_total",
			Help:      "Count of report deliveries by result.",
		},
		[]string{"result"},
	)

	bookingsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_bookings_skipped_total",
			Help:      "Count of bookings left out of a billing report by reason.",
		},
		[]string{"reason"},
	)

	unresolvedApartments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_unresolved_apartments_total",
			Help:      "Count of billed bookings whose guest matched no apartment.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			availabilityChecks,
			bookingCreated,
			bookingStatusChanged,
			reportsGenerated,
			reportDeliveries,
			bookingsSkipped,
			unresolvedApartments,
		)
	})
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}

func IncAvailability(available bool) {
	result := "conflict"
	if available {
		result = "available"
	}
	availabilityChecks.WithLabelValues(result).Inc()
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncStatusChanged(status string) {
	bookingStatusChanged.WithLabelValues(status).Inc()
}

func IncReport(format string) {
	reportsGenerated.WithLabelValues(format).Inc()
}

func IncDelivery(ok bool) {
	result := "failed"
	if ok {
		result = "delivered"
	}
	reportDeliveries.WithLabelValues(result).Inc()
}

// BillingObserver counts billing outcomes; it satisfies billing.Observer.
type BillingObserver struct{}

func (BillingObserver) BookingSkipped(reason string) {
	bookingsSkipped.WithLabelValues(reason).Inc()
}

func (BillingObserver) ApartmentUnresolved() {
	unresolvedApartments.Inc()
}
