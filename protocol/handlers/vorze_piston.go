package handlers

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("vorze-piston", func() protocol.Handler { return &VorzePiston{} })
}

// vorzePistonDeviceByte identifies the Piston device class in Vorze's
// shared command frame.
const vorzePistonDeviceByte = 0x03

// VorzePiston derives a speed from a position-with-duration command via a
// documented power curve against the previously commanded position (spec
// §4.5 "Vorze Piston keeps previous_position to derive speed ... via a
// documented power curve").
type VorzePiston struct {
	protocol.Unimplemented

	previousPosition atomic.Uint32
}

// Name implements protocol.Handler.
func (*VorzePiston) Name() string { return "vorze-piston" }

// PositionWithDuration implements protocol.Handler.
func (h *VorzePiston) PositionWithDuration(_ context.Context, f protocol.Feature, position, durationMs uint32) ([]protocol.HardwareCommand, error) {
	previous := h.previousPosition.Load()
	speed := vorzePistonSpeed(math.Abs(float64(previous)-float64(position)), float64(durationMs))
	h.previousPosition.Store(position)

	return []protocol.HardwareCommand{{
		Kind:              protocol.Write,
		Endpoint:          message.EndpointTx,
		FeatureID:         f.ID,
		Data:              []byte{vorzePistonDeviceByte, byte(position), speed},
		WriteWithResponse: true,
	}}, nil
}

// vorzePistonSpeed implements the power curve the original hardware
// driver uses to translate a travel distance and a requested duration
// into a 0-100 motor speed.
func vorzePistonSpeed(distance, durationMs float64) byte {
	if distance <= 0 {
		return 100
	}
	if distance > 200 {
		distance = 200
	}

	duration := 200 * durationMs / distance
	speed := math.Pow(duration/6658, -1.21)

	if speed > 100 {
		speed = 100
	}
	if speed < 0 {
		speed = 0
	}
	return byte(speed)
}

// KeepAliveStrategy implements protocol.Handler.
func (*VorzePiston) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveRepeatLastPacket
}

// Reset implements protocol.Handler.
func (h *VorzePiston) Reset() {
	h.previousPosition.Store(0)
}
