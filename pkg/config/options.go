// Package config implements the CLI flag surface and JSON/subopt
// configuration ingestion of §6: everything a fairmq-device binary needs
// to turn --channel-config entries, an --mq-config JSON file, and the
// --shm-* flags into channel.Channel and shmem.Config values.
package config

import (
	"fmt"
	"time"
)

// ErrParse is returned for any malformed CLI or JSON input; main() maps it
// to exit code 2 (§6's "configuration parse error").
var ErrParse = fmt.Errorf("config: parse error")

// ChannelOptions is one channel's configuration, merged from whichever of
// --channel-config or --mq-config supplied it (§6's JSON schema: "name",
// "type", "method", "address", and a "sockets[]" list of per-subchannel
// overrides).
type ChannelOptions struct {
	Name      string
	Type      string // socket kind: push, pull, pub, sub, req, rep, pair, dealer, router, xsub, xpub
	Method    string // "bind" or "connect"
	Address   string
	Transport string // "zeromq", "shmem", "ofi"; defaults to the device's --transport

	SndBufSize     int
	RcvBufSize     int
	SndKernelSize  int
	RcvKernelSize  int
	SndTimeoutMs   int
	RcvTimeoutMs   int
	LingerMs       int
	RateLoggingMs  int
	PortRangeMin   int
	PortRangeMax   int
	AutoBind       bool
	NumSockets     int
}

// DeviceOptions is one device entry under fairMQOptions.devices[] in an
// --mq-config file.
type DeviceOptions struct {
	ID       string           `json:"id"`
	Channels []ChannelOptions `json:"channels"`
}

// FairMQOptions is the JSON configuration schema root of §6: "Root
// fairMQOptions.devices[], each with id, channels[], each with name, type,
// method, address, and sockets[] with per-subchannel overrides."
type FairMQOptions struct {
	Devices []DeviceOptions `json:"devices"`
}

// jsonChannel and jsonSocketOverride mirror the wire shape of one channel
// entry in an --mq-config file; LoadJSON flattens sockets[] overrides into
// one ChannelOptions per subchannel, defaulting unset fields from the
// parent channel entry.
type jsonChannel struct {
	Name    string               `json:"name"`
	Type    string               `json:"type"`
	Method  string                `json:"method"`
	Address string                `json:"address"`
	Sockets []jsonSocketOverride `json:"sockets"`
}

type jsonSocketOverride struct {
	Type           string `json:"type"`
	Method         string `json:"method"`
	Address        string `json:"address"`
	Transport      string `json:"transport"`
	SndBufSize     int    `json:"sndBufSize"`
	RcvBufSize     int    `json:"rcvBufSize"`
	SndKernelSize  int    `json:"sndKernelSize"`
	RcvKernelSize  int    `json:"rcvKernelSize"`
	SndTimeoutMs   int    `json:"sndTimeoutMs"`
	RcvTimeoutMs   int    `json:"rcvTimeoutMs"`
	Linger         int    `json:"linger"`
	RateLogging    int    `json:"rateLogging"`
	PortRangeMin   int    `json:"portRangeMin"`
	PortRangeMax   int    `json:"portRangeMax"`
	AutoBind       bool   `json:"autoBind"`
	NumSockets     int    `json:"numSockets"`
}

// Flags is the full device CLI surface of §6, populated either from
// cobra flags (BindFlags/FromCommand) or directly by tests.
type Flags struct {
	ID               string
	IOThreads        int
	Transport        string
	NetworkInterface string
	InitTimeout      time.Duration
	Session          string
	Control          string // "static", "interactive", or "dds"

	ChannelConfig []string
	MQConfig      string
	ConfigKey     string
	Rate          float64

	ShmSegmentSize            int
	ShmAllocation             string
	ShmSegmentID              uint16
	ShmID                     uint64
	ShmMlockSegment           bool
	ShmMlockSegmentOnCreation bool
	ShmZeroSegment            bool
	ShmZeroSegmentOnCreation  bool
	ShmThrowBadAlloc          bool
	BadAllocMaxAttempts       int
	BadAllocAttemptInterval   time.Duration
	ShmMonitor                bool
	ShmNoCleanup              bool

	MetricsAddress string // empty disables the /metrics, /health, /ready, /live HTTP server

	Help          bool
	Version       bool
	PrintChannels bool
	PrintOptions  bool
}
