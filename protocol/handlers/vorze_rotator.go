package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("vorze-rotator", func() protocol.Handler { return &VorzeRotator{} })
}

// vorzeRotatorDeviceByte and vorzeRotateAction identify the Cyclone
// device class and its "rotate" action byte in Vorze's shared frame.
const (
	vorzeRotatorDeviceByte = 0x01
	vorzeRotateAction      = 0x01
)

// VorzeRotator packs a clockwise bit into the high bit of the speed byte
// (spec §4.5's rotate_with_direction verb).
type VorzeRotator struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*VorzeRotator) Name() string { return "vorze-rotator" }

// RotateWithDirection implements protocol.Handler.
func (*VorzeRotator) RotateWithDirection(_ context.Context, f protocol.Feature, speed uint32, clockwise bool) ([]protocol.HardwareCommand, error) {
	var dir byte
	if clockwise {
		dir = 1
	}
	data := (dir << 7) | byte(speed)

	return []protocol.HardwareCommand{{
		Kind:              protocol.Write,
		Endpoint:          message.EndpointTx,
		FeatureID:         f.ID,
		Data:              []byte{vorzeRotatorDeviceByte, vorzeRotateAction, data},
		WriteWithResponse: true,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*VorzeRotator) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
