package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("mannuo", func() protocol.Handler { return &ManNuo{} })
}

// ManNuo frames a vibrate command as a fixed 8-byte body followed by an
// XOR checksum over those bytes, written with-response (spec §4.5).
type ManNuo struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*ManNuo) Name() string { return "mannuo" }

// Vibrate implements protocol.Handler.
func (*ManNuo) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	data := []byte{0xAA, 0x55, 0x06, 0x01, 0x01, 0x01, byte(speed), 0xFA}
	var crc byte
	for _, b := range data {
		crc ^= b
	}
	data = append(data, crc)

	return []protocol.HardwareCommand{{
		Kind:              protocol.Write,
		Endpoint:          message.EndpointTx,
		FeatureID:         f.ID,
		Data:              data,
		WriteWithResponse: true,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*ManNuo) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
