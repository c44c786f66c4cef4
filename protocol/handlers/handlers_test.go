package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/xmidt-org/devbridge/protocol/handlers"

	"github.com/xmidt-org/devbridge/protocol"
)

func TestMaxproSpeed10ProducesScenario6Bytes(t *testing.T) {
	h, ok := protocol.New("maxpro")
	require.True(t, ok)

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{Index: 0}, 10)
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	assert.Equal(t, []byte{0x55, 0x04, 0x07, 0xFF, 0xFF, 0x3F, 0x0A, 0x5F, 0x0A, 0x10}, cmds[0].Data)
}

func TestPicobongZeroSpeedUsesStopMode(t *testing.T) {
	h, ok := protocol.New("picobong")
	require.True(t, ok)

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xFF, 0x00}, cmds[0].Data)

	cmds, err = h.Vibrate(context.Background(), protocol.Feature{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x01, 0x05}, cmds[0].Data)
}

func TestManNuoAppendsXORChecksum(t *testing.T) {
	h, ok := protocol.New("mannuo")
	require.True(t, ok)

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{}, 0x20)
	require.NoError(t, err)

	data := cmds[0].Data
	var want byte
	for _, b := range data[:len(data)-1] {
		want ^= b
	}
	assert.Equal(t, want, data[len(data)-1])
	assert.True(t, cmds[0].WriteWithResponse)
}

func TestLiboSharkPacksBothFeaturesIntoOneByte(t *testing.T) {
	h, ok := protocol.New("libo-shark")
	require.True(t, ok)
	assert.True(t, h.NeedsFullCommandSet())

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{Index: 0}, 0x0A)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA0), cmds[0].Data[0])

	cmds, err = h.Vibrate(context.Background(), protocol.Feature{Index: 1}, 0x05)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA5), cmds[0].Data[0])
}

func TestKiirooV2VibratorKeepsThreeSlotsAtomically(t *testing.T) {
	h, ok := protocol.New("kiiroo-v2-vibrator")
	require.True(t, ok)

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{Index: 1}, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 7, 0}, cmds[0].Data)
}

func TestXibaoChecksumWraps(t *testing.T) {
	h, ok := protocol.New("xibao")
	require.True(t, ok)

	cmds, err := h.Oscillate(context.Background(), protocol.Feature{}, 0xFF)
	require.NoError(t, err)
	data := cmds[0].Data
	assert.Equal(t, byte(0xFF), data[len(data)-2])
	assert.Equal(t, byte((0xFF+0xB5)&0xFF), data[len(data)-1])
}

func TestLovenseFormsAsciiVibrateCommand(t *testing.T) {
	h, ok := protocol.New("lovense")
	require.True(t, ok)

	cmds, err := h.Vibrate(context.Background(), protocol.Feature{}, 10)
	require.NoError(t, err)
	assert.Equal(t, "Vibrate:10;", string(cmds[0].Data))
}

func TestUnsupportedCapabilityReturnsErrUnsupported(t *testing.T) {
	h, ok := protocol.New("aneros")
	require.True(t, ok)

	_, err := h.Rotate(context.Background(), protocol.Feature{}, 1)
	assert.ErrorIs(t, err, protocol.ErrUnsupported)
}
