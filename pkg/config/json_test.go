package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
  "fairMQOptions": {
    "devices": [
      {
        "id": "sampler",
        "channels": [
          {
            "name": "data",
            "type": "push",
            "method": "bind",
            "address": "tcp://*:5555"
          },
          {
            "name": "ctrl",
            "type": "pair",
            "method": "connect",
            "address": "tcp://localhost:5556",
            "sockets": [
              {"address": "tcp://localhost:5556"},
              {"address": "tcp://localhost:5557", "method": "bind"}
            ]
          }
        ]
      }
    ]
  }
}`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mq-config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))
	return path
}

func TestLoadJSONFlattensSingleChannelWithoutSockets(t *testing.T) {
	doc, err := LoadJSON(writeSampleConfig(t))
	require.NoError(t, err)
	require.Len(t, doc.Devices, 1)

	dev := doc.Devices[0]
	assert.Equal(t, "sampler", dev.ID)

	var data *ChannelOptions
	for i := range dev.Channels {
		if dev.Channels[i].Name == "data" {
			data = &dev.Channels[i]
		}
	}
	require.NotNil(t, data)
	assert.Equal(t, "push", data.Type)
	assert.Equal(t, "tcp://*:5555", data.Address)
}

func TestLoadJSONExpandsSocketsIntoSubchannels(t *testing.T) {
	doc, err := LoadJSON(writeSampleConfig(t))
	require.NoError(t, err)

	dev := doc.Devices[0]
	var ctrls []ChannelOptions
	for _, c := range dev.Channels {
		if c.Name == "ctrl" {
			ctrls = append(ctrls, c)
		}
	}
	require.Len(t, ctrls, 2)
	assert.Equal(t, "connect", ctrls[0].Method) // inherited from the parent
	assert.Equal(t, "tcp://localhost:5556", ctrls[0].Address)
	assert.Equal(t, "bind", ctrls[1].Method) // overridden by its socket entry
	assert.Equal(t, "tcp://localhost:5557", ctrls[1].Address)
}

func TestDeviceByIDReturnsErrParseWhenAbsent(t *testing.T) {
	doc, err := LoadJSON(writeSampleConfig(t))
	require.NoError(t, err)

	_, err = doc.DeviceByID("nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadJSONRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadJSON(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoadJSONRejectsMissingFile(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}
