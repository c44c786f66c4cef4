package handlers

import (
	"context"
	"sync"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("libo-shark", func() protocol.Handler { return &LiboShark{} })
}

// LiboShark packs two vibrating features' speeds into the two nibbles of
// a single byte, so it needs the full per-feature state to emit any
// packet at all (spec §4.5 "pack both nibbles into one byte").
type LiboShark struct {
	protocol.Unimplemented

	mu     sync.Mutex
	speeds [2]byte
}

// Name implements protocol.Handler.
func (*LiboShark) Name() string { return "libo-shark" }

// Vibrate implements protocol.Handler.
func (h *LiboShark) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f.Index < uint32(len(h.speeds)) {
		h.speeds[f.Index] = byte(speed)
	}
	data := (h.speeds[0] << 4) | (h.speeds[1] & 0x0F)

	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      []byte{data},
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*LiboShark) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}

// NeedsFullCommandSet implements protocol.Handler.
func (*LiboShark) NeedsFullCommandSet() bool { return true }

// Reset implements protocol.Handler.
func (h *LiboShark) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speeds = [2]byte{}
}
