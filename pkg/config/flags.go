package config

import (
	"time"

	"github.com/spf13/cobra"
)

// BindFlags registers the full device CLI surface of §6 on cmd.
func BindFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.String("id", "", "device identity")
	f.Int("io-threads", 1, "transport I/O thread count")
	f.String("transport", "zeromq", "default transport: zeromq, shmem, or ofi")
	f.String("network-interface", "default", "interface name, or \"default\" to autodetect from the default route")
	f.Duration("init-timeout", 120*time.Second, "dynamic-initialization deadline")
	f.String("session", "default", "session name (seeds the shared-memory segment id)")
	f.String("control", "static", "controller mode: static, interactive, or dds")

	f.StringArray("channel-config", nil, "channel sub-option entry: name:type=...,method=...,address=...")
	f.String("mq-config", "", "JSON configuration file (alternative to --channel-config)")
	f.String("config-key", "", "overrides --id for configuration lookup only")
	f.Float64("rate", 0, "conditional-run loop rate limit in Hz (0 disables)")

	f.Int("shm-segment-size", 2<<30, "shared-memory segment size in bytes")
	f.String("shm-allocation", "rbtree_best_fit", "allocator: rbtree_best_fit or simple_seq_fit")
	f.Uint16("shm-segment-id", 0, "alternate segment id sharing the session's refcount segment")
	f.Uint64("shmid", 0, "override the derived SysV IPC key")
	f.Bool("shm-mlock-segment", false, "mlock the segment after attaching (parsed only; no mlock is applied after attaching)")
	f.Bool("shm-mlock-segment-on-creation", false, "mlock the segment at creation time")
	f.Bool("shm-zero-segment", false, "zero the segment after attaching (parsed only; the segment is not zeroed after attaching)")
	f.Bool("shm-zero-segment-on-creation", false, "zero the segment at creation time")
	f.Bool("shm-throw-bad-alloc", true, "keep the --bad-alloc-max-attempts cap on allocator retries; false makes retries unbounded")
	f.Int("bad-alloc-max-attempts", -1, "allocator retry cap; -1 is unbounded")
	f.Duration("bad-alloc-attempt-interval", 50*time.Millisecond, "delay between allocator retries")
	f.Bool("shm-monitor", false, "spawn a fairmq-shm-monitor alongside this device (parsed only; no monitor process is spawned)")
	f.Bool("shm-no-cleanup", false, "skip releasing this device's shared-memory segments on exit")

	f.String("metrics-address", "", "address for the /metrics, /health, /ready, /live HTTP server; empty disables it")

	f.Bool("print-channels", false, "print the resolved channel configuration and exit")
	f.Bool("print-options", false, "print the resolved device options and exit")
}

// FromCommand reads cmd's flags (as registered by BindFlags) into a Flags
// value.
func FromCommand(cmd *cobra.Command) (*Flags, error) {
	fl := cmd.Flags()
	f := &Flags{}

	var err error
	get := func(name string, fn func(string) error) {
		if err != nil {
			return
		}
		err = fn(name)
	}

	get("id", func(n string) (e error) { f.ID, e = fl.GetString(n); return })
	get("io-threads", func(n string) (e error) { f.IOThreads, e = fl.GetInt(n); return })
	get("transport", func(n string) (e error) { f.Transport, e = fl.GetString(n); return })
	get("network-interface", func(n string) (e error) { f.NetworkInterface, e = fl.GetString(n); return })
	get("init-timeout", func(n string) (e error) { f.InitTimeout, e = fl.GetDuration(n); return })
	get("session", func(n string) (e error) { f.Session, e = fl.GetString(n); return })
	get("control", func(n string) (e error) { f.Control, e = fl.GetString(n); return })

	get("channel-config", func(n string) (e error) { f.ChannelConfig, e = fl.GetStringArray(n); return })
	get("mq-config", func(n string) (e error) { f.MQConfig, e = fl.GetString(n); return })
	get("config-key", func(n string) (e error) { f.ConfigKey, e = fl.GetString(n); return })
	get("rate", func(n string) (e error) { f.Rate, e = fl.GetFloat64(n); return })

	get("shm-segment-size", func(n string) (e error) { f.ShmSegmentSize, e = fl.GetInt(n); return })
	get("shm-allocation", func(n string) (e error) { f.ShmAllocation, e = fl.GetString(n); return })
	get("shm-segment-id", func(n string) (e error) { f.ShmSegmentID, e = fl.GetUint16(n); return })
	get("shmid", func(n string) (e error) { f.ShmID, e = fl.GetUint64(n); return })
	get("shm-mlock-segment", func(n string) (e error) { f.ShmMlockSegment, e = fl.GetBool(n); return })
	get("shm-mlock-segment-on-creation", func(n string) (e error) { f.ShmMlockSegmentOnCreation, e = fl.GetBool(n); return })
	get("shm-zero-segment", func(n string) (e error) { f.ShmZeroSegment, e = fl.GetBool(n); return })
	get("shm-zero-segment-on-creation", func(n string) (e error) { f.ShmZeroSegmentOnCreation, e = fl.GetBool(n); return })
	get("shm-throw-bad-alloc", func(n string) (e error) { f.ShmThrowBadAlloc, e = fl.GetBool(n); return })
	get("bad-alloc-max-attempts", func(n string) (e error) { f.BadAllocMaxAttempts, e = fl.GetInt(n); return })
	get("bad-alloc-attempt-interval", func(n string) (e error) { f.BadAllocAttemptInterval, e = fl.GetDuration(n); return })
	get("shm-monitor", func(n string) (e error) { f.ShmMonitor, e = fl.GetBool(n); return })
	get("shm-no-cleanup", func(n string) (e error) { f.ShmNoCleanup, e = fl.GetBool(n); return })

	get("metrics-address", func(n string) (e error) { f.MetricsAddress, e = fl.GetString(n); return })

	get("print-channels", func(n string) (e error) { f.PrintChannels, e = fl.GetBool(n); return })
	get("print-options", func(n string) (e error) { f.PrintOptions, e = fl.GetBool(n); return })

	if err != nil {
		return nil, err
	}
	return f, nil
}
