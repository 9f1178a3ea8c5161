package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spadesk"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by kind (single, combo).",
		},
		[]string{"kind"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	fullyBooked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_fully_booked_total",
			Help:      "Count of requests rejected because every resource of a category was taken.",
		},
		[]string{"category"},
	)

	concurrentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrent_modification_total",
			Help:      "Serialization conflicts seen by operation.",
		},
		[]string{"operation"},
	)

	importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported rows by outcome (drafted, skipped).",
		},
		[]string{"outcome"},
	)

	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of draft publish transactions.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	draftsPromoted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drafts_promoted_total",
			Help:      "Draft bookings promoted to confirmed.",
		},
	)

	toggleStoreDown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "toggle_store_down",
			Help:      "1 while the primary availability toggle store is unreachable.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			fullyBooked,
			concurrentRetries,
			importRows,
			publishDuration,
			draftsPromoted,
			toggleStoreDown,
			httpRequests,
		)
	})
}

func IncBookingCreated(kind string) {
	bookingCreated.WithLabelValues(kind).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncFullyBooked(category string) {
	fullyBooked.WithLabelValues(category).Inc()
}

func IncConcurrentModification(operation string) {
	concurrentRetries.WithLabelValues(operation).Inc()
}

func AddImportRows(outcome string, n int) {
	importRows.WithLabelValues(outcome).Add(float64(n))
}

func ObservePublish(result string, d time.Duration) {
	publishDuration.WithLabelValues(result).Observe(d.Seconds())
}

func AddDraftsPromoted(n int64) {
	draftsPromoted.Add(float64(n))
}

func SetToggleStoreDown(down bool) {
	if down {
		toggleStoreDown.Set(1)
		return
	}
	toggleStoreDown.Set(0)
}

func IncHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
