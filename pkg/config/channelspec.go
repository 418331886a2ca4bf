package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChannelConfig parses the --channel-config entries of §6: one entry
// per channel, shaped "name:key=value,key=value,...", where the channel
// name is the group label up to the first ':' (mirroring the original's
// "name:type=push,method=bind,address=..." sub-option syntax). The prefix
// is required; a "name=..." sub-option, if also given, replaces it.
func ParseChannelConfig(entries []string) ([]ChannelOptions, error) {
	opts := make([]ChannelOptions, 0, len(entries))
	for _, entry := range entries {
		o, err := parseChannelEntry(entry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	return opts, nil
}

func parseChannelEntry(entry string) (ChannelOptions, error) {
	name, rest, ok := strings.Cut(entry, ":")
	if !ok || name == "" {
		return ChannelOptions{}, fmt.Errorf("%w: channel-config entry %q has no \"name:\" prefix", ErrParse, entry)
	}

	o := ChannelOptions{
		Name:         name,
		Method:       "bind",
		SndTimeoutMs: 100,
		RcvTimeoutMs: 100,
		LingerMs:     500,
		PortRangeMin: 22000,
		PortRangeMax: 23000,
		NumSockets:   1,
	}

	for _, pair := range strings.Split(rest, ",") {
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return ChannelOptions{}, fmt.Errorf("%w: channel %q: malformed sub-option %q", ErrParse, name, pair)
		}
		if err := applyChannelOption(&o, key, value); err != nil {
			return ChannelOptions{}, fmt.Errorf("channel %q: %w", name, err)
		}
	}
	return o, nil
}

func applyChannelOption(o *ChannelOptions, key, value string) error {
	switch key {
	case "name":
		o.Name = value
	case "type":
		o.Type = value
	case "method":
		o.Method = value
	case "address":
		o.Address = value
	case "transport":
		o.Transport = value
	case "sndBufSize":
		return setIntOption(&o.SndBufSize, key, value)
	case "rcvBufSize":
		return setIntOption(&o.RcvBufSize, key, value)
	case "sndKernelSize":
		return setIntOption(&o.SndKernelSize, key, value)
	case "rcvKernelSize":
		return setIntOption(&o.RcvKernelSize, key, value)
	case "sndTimeoutMs":
		return setIntOption(&o.SndTimeoutMs, key, value)
	case "rcvTimeoutMs":
		return setIntOption(&o.RcvTimeoutMs, key, value)
	case "linger":
		return setIntOption(&o.LingerMs, key, value)
	case "rateLogging":
		return setIntOption(&o.RateLoggingMs, key, value)
	case "portRangeMin":
		return setIntOption(&o.PortRangeMin, key, value)
	case "portRangeMax":
		return setIntOption(&o.PortRangeMax, key, value)
	case "numSockets":
		return setIntOption(&o.NumSockets, key, value)
	case "autoBind":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: sub-option %q: %v", ErrParse, key, err)
		}
		o.AutoBind = b
	default:
		return fmt.Errorf("%w: unrecognized sub-option %q", ErrParse, key)
	}
	return nil
}

func setIntOption(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: sub-option %q: %v", ErrParse, key, err)
	}
	*dst = n
	return nil
}
