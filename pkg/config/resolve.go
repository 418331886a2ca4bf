package config

import "fmt"

// Resolve produces the final channel configuration for f: --mq-config
// takes a JSON file and looks up the device by --config-key (falling back
// to --id), --channel-config parses its sub-option entries directly, and
// the two are mutually exclusive (§6: "--mq-config <path>: JSON
// configuration file (alternative to --channel-config)").
func Resolve(f *Flags) ([]ChannelOptions, error) {
	switch {
	case f.MQConfig != "" && len(f.ChannelConfig) > 0:
		return nil, fmt.Errorf("%w: --mq-config and --channel-config are mutually exclusive", ErrParse)

	case f.MQConfig != "":
		doc, err := LoadJSON(f.MQConfig)
		if err != nil {
			return nil, err
		}
		lookupID := f.ConfigKey
		if lookupID == "" {
			lookupID = f.ID
		}
		dev, err := doc.DeviceByID(lookupID)
		if err != nil {
			return nil, err
		}
		return dev.Channels, nil

	case len(f.ChannelConfig) > 0:
		return ParseChannelConfig(f.ChannelConfig)

	default:
		return nil, nil
	}
}
