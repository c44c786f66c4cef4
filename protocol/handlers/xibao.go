package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("xibao", func() protocol.Handler { return &Xibao{} })
}

// Xibao frames an oscillate command in a fixed 11-byte header followed
// by the value and a rolling sum checksum (spec §4.5 "frame value +
// rolling sum (value + 0xB5) mod 256").
type Xibao struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*Xibao) Name() string { return "xibao" }

// Oscillate implements protocol.Handler.
func (*Xibao) Oscillate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	value := byte(speed)
	data := []byte{
		0x66, 0x3A, 0x00, 0x06, 0x00, 0x06, 0x01, 0x02, 0x00, 0x02, 0x04,
		value,
		value + 0xB5,
	}

	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      data,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*Xibao) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
