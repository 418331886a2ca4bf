package metrics

import (
	"time"

	"github.com/FairRootGroup/fairmq-go/pkg/device"
	"github.com/FairRootGroup/fairmq-go/pkg/shmmonitor"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
)

// collectorStateObserver is the name a Collector registers its state-change
// hook under, so it can be replaced (not stacked) if NewCollector is called
// again for the same device.
const collectorStateObserver = "metrics-collector"

// Collector collects Prometheus metrics from a running device and,
// optionally, the shared-memory session it participates in.
type Collector struct {
	device *device.Device
	mng    *shmem.ManagementDB
	mon    *shmmonitor.Monitor
	stopCh chan struct{}
}

// NewCollector creates a collector for d. It immediately registers a
// state-change hook so transition counts and the current-state gauge are
// updated as they happen, rather than only on the next poll tick.
func NewCollector(d *device.Device) *Collector {
	c := &Collector{
		device: d,
		stopCh: make(chan struct{}),
	}
	d.OnStateChange(collectorStateObserver, c.observeTransition)
	return c
}

// WithManagementDB attaches a shared-memory session's management segment,
// enabling region-count and region-bytes metrics. Returns c for chaining.
func (c *Collector) WithManagementDB(mng *shmem.ManagementDB) *Collector {
	c.mng = mng
	return c
}

// WithMonitor attaches a shmmonitor.Monitor, enabling heartbeat-age metrics
// for the session it watches. Returns c for chaining.
func (c *Collector) WithMonitor(mon *shmmonitor.Monitor) *Collector {
	c.mon = mon
	return c
}

func (c *Collector) observeTransition(newState, prev device.State) {
	id := c.device.ID()
	DeviceStateTransitionsTotal.WithLabelValues(id, newState.String()).Inc()
	DeviceStateCurrent.WithLabelValues(id, prev.String()).Set(0)
	DeviceStateCurrent.WithLabelValues(id, newState.String()).Set(1)
}

// Start begins collecting polled metrics (channel rates, shmem occupancy,
// heartbeat age) on a fixed interval; state metrics are pushed as they
// happen and don't need polling.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectChannelMetrics()
	c.collectShmMetrics()
	c.collectHeartbeatMetrics()
}

func (c *Collector) collectChannelMetrics() {
	id := c.device.ID()
	for _, name := range c.device.ChannelNames() {
		subs := c.device.Channels(name)
		ChannelSubchannelsTotal.WithLabelValues(id, name).Set(float64(len(subs)))

		var rate float64
		for _, ch := range subs {
			rate += ch.RateValue()
		}
		ChannelMessageRate.WithLabelValues(id, name).Set(rate)
	}
}

func (c *Collector) collectShmMetrics() {
	if c.mng == nil {
		return
	}
	regions, err := c.mng.Regions()
	if err != nil {
		return
	}
	var totalBytes int
	for _, r := range regions {
		totalBytes += r.Size
	}
	ShmRegionsTotal.WithLabelValues(c.device.ID()).Set(float64(len(regions)))
	ShmRegionBytesTotal.WithLabelValues(c.device.ID()).Set(float64(totalBytes))
}

func (c *Collector) collectHeartbeatMetrics() {
	if c.mon == nil {
		return
	}
	ShmHeartbeatAgeSeconds.WithLabelValues(c.device.ID()).Set(c.mon.HeartbeatAge().Seconds())
}
