package upgrade_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
	_ "github.com/xmidt-org/devbridge/message/v0"
	_ "github.com/xmidt-org/devbridge/message/v1"
	_ "github.com/xmidt-org/devbridge/message/v2"
	_ "github.com/xmidt-org/devbridge/message/v3"
)

type fakeDeviceContext struct {
	features []message.FeatureRange
}

func (f fakeDeviceContext) FeaturesByActuator(_ uint32, a message.ActuatorType) []message.FeatureRange {
	var out []message.FeatureRange
	for _, fr := range f.features {
		if fr.Actuator == a {
			out = append(out, fr)
		}
	}
	return out
}

func (f fakeDeviceContext) Features(_ uint32) []message.FeatureRange { return f.features }

func TestDeprecatedMessagesReturnErrDeprecated(t *testing.T) {
	u, ok := upgrade.For(message.V0)
	require.True(t, ok)

	_, err := u.Up("KiirooCmd", nil, nil)
	var derr *upgrade.ErrDeprecated
	assert.ErrorAs(t, err, &derr)
	assert.Equal(t, "KiirooCmd", derr.Name)
}

func TestIdentityUpgraderRoundTrips(t *testing.T) {
	u, ok := upgrade.For(message.V4)
	require.True(t, ok)

	ping := &message.Ping{}
	ping.SetID(7)

	m, err := u.Up("Ping", ping, nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), m.ID())

	name, payload, ok := u.Down(ping, nil)
	require.True(t, ok)
	assert.Equal(t, "Ping", name)
	assert.Equal(t, ping, payload)
}
