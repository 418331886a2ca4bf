package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsBothSourcesGiven(t *testing.T) {
	f := &Flags{MQConfig: "x.json", ChannelConfig: []string{"data:type=push"}}
	_, err := Resolve(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestResolveUsesChannelConfigWhenMQConfigAbsent(t *testing.T) {
	f := &Flags{ChannelConfig: []string{"data:type=push,method=bind,address=tcp://*:5555"}}
	opts, err := Resolve(f)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "data", opts[0].Name)
}

func TestResolveUsesMQConfigAndIDWithoutConfigKey(t *testing.T) {
	path := writeSampleConfig(t)
	f := &Flags{MQConfig: path, ID: "sampler"}
	opts, err := Resolve(f)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestResolveConfigKeyOverridesID(t *testing.T) {
	path := writeSampleConfig(t)
	f := &Flags{MQConfig: path, ID: "not-the-device", ConfigKey: "sampler"}
	opts, err := Resolve(f)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestResolveReturnsNilWhenNeitherSourceGiven(t *testing.T) {
	opts, err := Resolve(&Flags{})
	require.NoError(t, err)
	assert.Nil(t, opts)
}
