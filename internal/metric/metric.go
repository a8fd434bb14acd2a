package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watchparty"

// event types with their own label value; everything else is counted as "other"
var knownEventTypes = map[string]struct{}{
	"hello": {}, "presence": {}, "load": {}, "play": {}, "pause": {}, "seek": {},
	"sync": {}, "fullscreen": {}, "chat": {}, "rtc-offer": {}, "rtc-answer": {}, "rtc-ice": {},
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms held in memory",
		},
	)

	evictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_evictions_total",
			Help:      "Rooms removed after their grace period",
		},
	)

	activeSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Number of live event streams",
		},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_relayed_total",
			Help:      "Events accepted for relay by type",
		},
		[]string{"type", "source"},
	)

	malformedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_malformed_total",
			Help:      "Broadcasts rejected as malformed",
		},
	)

	framesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames not delivered because a subscriber buffer was full",
		},
	)

	joinsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_rejected_total",
			Help:      "Join attempts rejected because the room was full",
		},
	)
)

func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func RoomCreated() {
	activeRooms.Inc()
}

func RoomEvicted() {
	activeRooms.Dec()
	evictionsTotal.Inc()
}

func IncrementSubscriptions() {
	activeSubscriptions.Inc()
}

func DecrementSubscriptions() {
	activeSubscriptions.Dec()
}

// RecordEvent counts a relayed event. source is "local" or "remote".
func RecordEvent(eventType, source string) {
	if _, ok := knownEventTypes[eventType]; !ok {
		eventType = "other"
	}

	eventsTotal.WithLabelValues(eventType, source).Inc()
}

func RecordMalformedEvent() {
	malformedEventsTotal.Inc()
}

func RecordDroppedFrames(n int) {
	if n > 0 {
		framesDroppedTotal.Add(float64(n))
	}
}

func RecordJoinRejected() {
	joinsRejectedTotal.Inc()
}
