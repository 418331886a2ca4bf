package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Device state metrics
	DeviceStateCurrent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_device_state",
			Help: "Whether a device is currently in a given main-FSM state (1) or not (0)",
		},
		[]string{"device", "state"},
	)

	DeviceStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairmq_device_state_transitions_total",
			Help: "Total number of main-FSM state transitions by device and resulting state",
		},
		[]string{"device", "state"},
	)

	// Channel metrics
	ChannelMessageRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_channel_message_rate",
			Help: "EWMA-smoothed bytes per send/receive observed on a channel's sockets",
		},
		[]string{"device", "channel"},
	)

	ChannelSubchannelsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_channel_subchannels_total",
			Help: "Number of subchannels configured under a channel name",
		},
		[]string{"device", "channel"},
	)

	// Shared-memory metrics
	ShmRegionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_shmem_regions_total",
			Help: "Number of unmanaged regions registered in a session's management segment",
		},
		[]string{"session"},
	)

	ShmRegionBytesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_shmem_region_bytes_total",
			Help: "Total bytes across a session's registered unmanaged regions",
		},
		[]string{"session"},
	)

	ShmHeartbeatAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fairmq_shmem_heartbeat_age_seconds",
			Help: "Seconds since the monitor last observed a heartbeat for a session",
		},
		[]string{"session"},
	)

	ShmSessionsCleanedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairmq_shmem_sessions_cleaned_total",
			Help: "Total number of sessions reclaimed by the shared-memory monitor",
		},
		[]string{"session"},
	)

	// Operation latency metrics
	ChannelSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairmq_channel_send_duration_seconds",
			Help:    "Time taken by blocking Channel.Send calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	ChannelReceiveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairmq_channel_receive_duration_seconds",
			Help:    "Time taken by blocking Channel.Receive calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	DeviceInitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairmq_device_init_duration_seconds",
			Help:    "Time taken for a device to move from InitDevice to Initialized in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeviceBindDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairmq_device_bind_duration_seconds",
			Help:    "Time taken for a device's Binding state to complete in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeviceConnectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairmq_device_connect_duration_seconds",
			Help:    "Time taken for a device's Connecting state to complete in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ShmAllocDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairmq_shmem_alloc_duration_seconds",
			Help:    "Time taken by shared-memory allocation (including retries) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DeviceStateCurrent)
	prometheus.MustRegister(DeviceStateTransitionsTotal)
	prometheus.MustRegister(ChannelMessageRate)
	prometheus.MustRegister(ChannelSubchannelsTotal)
	prometheus.MustRegister(ShmRegionsTotal)
	prometheus.MustRegister(ShmRegionBytesTotal)
	prometheus.MustRegister(ShmHeartbeatAgeSeconds)
	prometheus.MustRegister(ShmSessionsCleanedTotal)

	prometheus.MustRegister(ChannelSendDuration)
	prometheus.MustRegister(ChannelReceiveDuration)
	prometheus.MustRegister(DeviceInitDuration)
	prometheus.MustRegister(DeviceBindDuration)
	prometheus.MustRegister(DeviceConnectDuration)
	prometheus.MustRegister(ShmAllocDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
