package handlers

import (
	"context"
	"sync"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("kiiroo-v2-vibrator", func() protocol.Handler { return &KiirooV2Vibrator{} })
}

// KiirooV2Vibrator maintains three features' speeds atomically and
// re-emits all three bytes on every write (spec §4.5 "encodes all three
// current speeds as 3 bytes each write").
type KiirooV2Vibrator struct {
	protocol.Unimplemented

	mu     sync.Mutex
	speeds [3]byte
}

// Name implements protocol.Handler.
func (*KiirooV2Vibrator) Name() string { return "kiiroo-v2-vibrator" }

// Vibrate implements protocol.Handler.
func (h *KiirooV2Vibrator) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f.Index < uint32(len(h.speeds)) {
		h.speeds[f.Index] = byte(speed)
	}
	data := append([]byte(nil), h.speeds[:]...)

	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      data,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler.
func (*KiirooV2Vibrator) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}

// NeedsFullCommandSet implements protocol.Handler.
func (*KiirooV2Vibrator) NeedsFullCommandSet() bool { return true }

// Reset implements protocol.Handler.
func (h *KiirooV2Vibrator) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.speeds = [3]byte{}
}
