package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("picobong", func() protocol.Handler { return &Picobong{} })
}

// Picobong encodes a mode byte that's 0xFF at zero speed (to signal
// "stop" rather than "vibrate at 0") and 0x01 otherwise.
type Picobong struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*Picobong) Name() string { return "picobong" }

// Vibrate implements protocol.Handler.
func (*Picobong) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	mode := byte(0x01)
	if speed == 0 {
		mode = 0xFF
	}
	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      []byte{0x01, mode, byte(speed)},
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*Picobong) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
