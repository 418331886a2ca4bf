package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonRoot and jsonDevice mirror the on-disk schema ("Root
// fairMQOptions.devices[], each with id, channels[]...", §6); LoadJSON
// flattens them into the public FairMQOptions/DeviceOptions/ChannelOptions
// shapes used by the rest of the package.
type jsonRoot struct {
	FairMQOptions struct {
		Devices []jsonDevice `json:"devices"`
	} `json:"fairMQOptions"`
}

type jsonDevice struct {
	ID       string        `json:"id"`
	Channels []jsonChannel `json:"channels"`
}

// LoadJSON reads and parses an --mq-config file.
func LoadJSON(path string) (*FairMQOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrParse, path, err)
	}

	var root jsonRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	out := &FairMQOptions{}
	for _, d := range root.FairMQOptions.Devices {
		dev := DeviceOptions{ID: d.ID}
		for _, c := range d.Channels {
			dev.Channels = append(dev.Channels, flattenChannel(c)...)
		}
		out.Devices = append(out.Devices, dev)
	}
	return out, nil
}

// flattenChannel expands one JSON channel entry into one ChannelOptions
// per subchannel: a channel with no sockets[] entries becomes a single
// subchannel inheriting the parent's fields directly; each sockets[]
// entry overrides only the fields it sets, defaulting everything else
// from the parent.
func flattenChannel(c jsonChannel) []ChannelOptions {
	base := ChannelOptions{
		Name:         c.Name,
		Type:         c.Type,
		Method:       c.Method,
		Address:      c.Address,
		SndTimeoutMs: 100,
		RcvTimeoutMs: 100,
		LingerMs:     500,
		PortRangeMin: 22000,
		PortRangeMax: 23000,
		NumSockets:   1,
	}
	if len(c.Sockets) == 0 {
		return []ChannelOptions{base}
	}

	out := make([]ChannelOptions, 0, len(c.Sockets))
	for _, s := range c.Sockets {
		o := base
		if s.Type != "" {
			o.Type = s.Type
		}
		if s.Method != "" {
			o.Method = s.Method
		}
		if s.Address != "" {
			o.Address = s.Address
		}
		if s.Transport != "" {
			o.Transport = s.Transport
		}
		o.SndBufSize = s.SndBufSize
		o.RcvBufSize = s.RcvBufSize
		o.SndKernelSize = s.SndKernelSize
		o.RcvKernelSize = s.RcvKernelSize
		if s.SndTimeoutMs != 0 {
			o.SndTimeoutMs = s.SndTimeoutMs
		}
		if s.RcvTimeoutMs != 0 {
			o.RcvTimeoutMs = s.RcvTimeoutMs
		}
		if s.Linger != 0 {
			o.LingerMs = s.Linger
		}
		o.RateLoggingMs = s.RateLogging
		if s.PortRangeMin != 0 {
			o.PortRangeMin = s.PortRangeMin
		}
		if s.PortRangeMax != 0 {
			o.PortRangeMax = s.PortRangeMax
		}
		o.AutoBind = s.AutoBind
		if s.NumSockets != 0 {
			o.NumSockets = s.NumSockets
		}
		out = append(out, o)
	}
	return out
}

// DeviceByID returns the device entry matching id (the --config-key
// override, or --id when no override is given), or an error if absent.
func (o *FairMQOptions) DeviceByID(id string) (*DeviceOptions, error) {
	for i := range o.Devices {
		if o.Devices[i].ID == id {
			return &o.Devices[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no device %q in configuration", ErrParse, id)
}
