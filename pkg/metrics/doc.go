/*
Package metrics provides Prometheus metrics collection and exposition for a
fairmq-go device process.

The package defines and registers metrics using the Prometheus client
library, giving observability into a device's FSM state, its channels'
message rates, and (when shared memory is in play) its session's region
occupancy and heartbeat freshness. Metrics are exposed via an HTTP endpoint
for scraping by a Prometheus server.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                       │          │
	│  │                                              │          │
	│  │  Pushed (OnStateChange hook):                │          │
	│  │    - device state gauge, transition counter  │          │
	│  │  Polled (15s ticker):                        │          │
	│  │    - per-channel message rate, subchannels   │          │
	│  │    - shmem region count/bytes (if attached)  │          │
	│  │    - heartbeat age (if a monitor is attached) │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Device state metrics:

fairmq_device_state{device, state}:
  - Type: Gauge
  - 1 for the state the device is currently in, 0 for every other state it
    has previously occupied. Updated by an OnStateChange hook, not polled.

fairmq_device_state_transitions_total{device, state}:
  - Type: Counter
  - Incremented once per transition into state.

Channel metrics:

fairmq_channel_message_rate{device, channel}:
  - Type: Gauge
  - Sum of Channel.RateValue() (EWMA-smoothed bytes per send/receive, see
    pkg/channel) across a channel name's subchannels.

fairmq_channel_subchannels_total{device, channel}:
  - Type: Gauge
  - Number of subchannels configured under a channel name (§4.4's
    SetNumSockets, or one per --channel-config sub-option entry).

Shared-memory metrics (populated only when a Collector is attached to a
shmem.ManagementDB and/or a shmmonitor.Monitor):

fairmq_shmem_regions_total{session}:
  - Type: Gauge
  - Count of unmanaged regions currently in the session's management
    segment catalog.

fairmq_shmem_region_bytes_total{session}:
  - Type: Gauge
  - Sum of registered regions' sizes.

fairmq_shmem_heartbeat_age_seconds{session}:
  - Type: Gauge
  - Seconds since fairmq-shm-monitor last observed a heartbeat for the
    session; climbs steadily once a device stops heartbeating, which is
    exactly the condition that eventually triggers Monitor.Cleanup.

fairmq_shmem_sessions_cleaned_total{session}:
  - Type: Counter
  - Counts sessions reclaimed by the monitor. It is registered and
    exported, but no code in this module increments it.

Operation latency metrics (registered and exported; nothing in this module
observes them, so they record only what callers time themselves, as in
the Timer example under Usage):

fairmq_channel_send_duration_seconds{channel}, fairmq_channel_receive_duration_seconds{channel}:
  - Type: Histogram
  - Time spent blocked in Channel.Send/Receive.

fairmq_device_init_duration_seconds, fairmq_device_bind_duration_seconds, fairmq_device_connect_duration_seconds:
  - Type: Histogram
  - Time spent in the corresponding main-FSM state's framework action.

fairmq_shmem_alloc_duration_seconds:
  - Type: Histogram
  - Time spent in an AllocWithRetry call, including any retries.

# Usage

Attaching a Collector to a device:

	collector := metrics.NewCollector(d)
	collector.Start()
	defer collector.Stop()

Attaching shared-memory occupancy and heartbeat metrics:

	collector.WithManagementDB(mng).WithMonitor(mon)

Timing an operation:

	timer := metrics.NewTimer()
	n, err := ch.Send(msg, 0)
	timer.ObserveDurationVec(metrics.ChannelSendDuration, ch.Name())

Exposing the endpoint:

	http.Handle("/metrics", metrics.Handler())
	http.ListenAndServe(":8081", nil)

# Design Patterns

Push for state, poll for everything else:
  - State transitions are rare and must never be missed between ticks, so
    they're recorded from the FSM's OnStateChange hook directly.
  - Channel rates and shmem occupancy change continuously and are cheap to
    re-read, so a 15s ticker (matching the teacher's original collection
    cadence) is enough.

Label Discipline:
  - Labels are device ID, channel name, and session name — all bounded by
    configuration, never by message content or IDs.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
