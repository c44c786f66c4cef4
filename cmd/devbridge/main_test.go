package main

import (
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDeviceEntriesEmptyByDefault(t *testing.T) {
	v := viper.New()
	entries, err := loadDeviceEntries(v)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadDeviceEntriesFromConfig(t *testing.T) {
	v := viper.New()
	v.Set(devicesKey, []map[string]interface{}{
		{
			"Protocol":    "lovense",
			"DisplayName": "Lush",
		},
	})

	entries, err := loadDeviceEntries(v)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "lovense", entries[0].Protocol)
}

func TestBuildCommManagersSkipsLovenseConnectWhenUnset(t *testing.T) {
	v := viper.New()
	comms := buildCommManagers(v, log.NewNopLogger())
	assert.Empty(t, comms)
}

func TestBuildCommManagersIncludesLovenseConnectWhenConfigured(t *testing.T) {
	v := viper.New()
	v.Set(lovenseConnectURLKey, "http://127.0.0.1:30010")
	comms := buildCommManagers(v, log.NewNopLogger())
	require.Len(t, comms, 1)
	assert.Equal(t, "lovenseconnect", comms[0].Name())
}
