// Package handlers implements the concrete per-model protocol handlers
// from spec §4.5 (C6): pure functions from a canonical command to the
// device-specific byte packets that hardware expects. Each handler
// registers itself with package protocol via init(), the same
// registry-by-name pattern message/upgrade uses for versions.
package handlers

import (
	"context"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("aneros", func() protocol.Handler { return &Aneros{} })
}

// Aneros vibrators address each feature by offsetting a base mode byte,
// sending the speed as the second byte on endpoint Tx.
type Aneros struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*Aneros) Name() string { return "aneros" }

// Vibrate implements protocol.Handler.
func (*Aneros) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      []byte{0xF1 + byte(f.Index), byte(speed)},
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*Aneros) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}
