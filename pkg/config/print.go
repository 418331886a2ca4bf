package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlChannel is the pretty-printed shape of one subchannel for
// --print-channels; field names match the --channel-config sub-option
// keys so a user can round-trip what they see back into a CLI entry.
type yamlChannel struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Method     string `yaml:"method"`
	Address    string `yaml:"address"`
	Transport  string `yaml:"transport"`
	NumSockets int    `yaml:"numSockets"`
}

// PrintChannels renders opts as YAML to w (the --print-channels flag of
// §6).
func PrintChannels(w io.Writer, opts []ChannelOptions) error {
	out := make([]yamlChannel, 0, len(opts))
	for _, o := range opts {
		out = append(out, yamlChannel{
			Name:       o.Name,
			Type:       o.Type,
			Method:     o.Method,
			Address:    o.Address,
			Transport:  o.Transport,
			NumSockets: o.NumSockets,
		})
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("config: marshal channels: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// PrintOptions renders the resolved Flags as YAML to w (the
// --print-options flag of §6).
func PrintOptions(w io.Writer, f *Flags) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("config: marshal options: %w", err)
	}
	_, err = w.Write(data)
	return err
}
