package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/device/config"
	"github.com/xmidt-org/devbridge/message"
)

func testTable() *config.Table {
	return config.New([]config.Entry{
		{
			Protocol:     "aneros",
			DisplayName:  "Aneros Vivi",
			NamePrefixes: []string{"Vivi"},
			Features: []config.FeatureSpec{
				{Actuator: message.ActuatorVibrate, Min: 0, Max: 4, Endpoint: message.EndpointTx},
			},
		},
	})
}

func TestResolveMatchesByNamePrefix(t *testing.T) {
	tbl := testTable()
	entry, ok := tbl.Resolve(config.Descriptor{Name: "Vivi-ABCD"})
	require.True(t, ok)
	assert.Equal(t, "aneros", entry.Protocol)
}

func TestResolveNoMatch(t *testing.T) {
	tbl := testTable()
	_, ok := tbl.Resolve(config.Descriptor{Name: "Unrelated"})
	assert.False(t, ok)
}

func TestFeatureIDIsStableAcrossCalls(t *testing.T) {
	tbl := testTable()
	a := tbl.FeatureID("aneros", 0)
	b := tbl.FeatureID("aneros", 0)
	assert.Equal(t, a, b)

	c := tbl.FeatureID("aneros", 1)
	assert.NotEqual(t, a, c)
}
