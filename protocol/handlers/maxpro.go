package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("maxpro", func() protocol.Handler { return &Maxpro{} })
}

// Maxpro frames a vibrate command in a fixed 10-byte packet with a
// wrapping-sum checksum over the first nine bytes (spec §4.5, §8
// scenario 6).
type Maxpro struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*Maxpro) Name() string { return "maxpro" }

// Vibrate implements protocol.Handler.
func (*Maxpro) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	data := []byte{0x55, 0x04, 0x07, 0xFF, 0xFF, 0x3F, byte(speed), 0x5F, byte(speed), 0x00}
	var crc byte
	for _, b := range data[:9] {
		crc += b
	}
	data[9] = crc

	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      data,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*Maxpro) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
