package handlers

import (
	"context"
	"fmt"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("lovense", func() protocol.Handler { return &LovenseSingleActuator{} })
}

// LovenseSingleActuator speaks Lovense's ASCII command line protocol
// (e.g. "Vibrate:10;") over its single actuator endpoint; vibrate and
// oscillate both resolve to the same wire command (spec §4.5, grounded
// on the original's form_vibrate_command helper shared by both verbs).
type LovenseSingleActuator struct {
	protocol.Unimplemented
}

// Name implements protocol.Handler.
func (*LovenseSingleActuator) Name() string { return "lovense" }

// Vibrate implements protocol.Handler.
func (h *LovenseSingleActuator) Vibrate(ctx context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return formVibrateCommand(f, speed)
}

// Oscillate implements protocol.Handler.
func (h *LovenseSingleActuator) Oscillate(ctx context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return formVibrateCommand(f, speed)
}

// ReadInput implements protocol.Handler for battery reads; the
// lovenseconnect hardware communication manager polls the device status
// endpoint and answers this as a read rather than an endpoint write.
func (*LovenseSingleActuator) ReadInput(_ context.Context, f protocol.Feature) ([]protocol.HardwareCommand, error) {
	if f.Input != message.InputBattery {
		return nil, protocol.ErrUnsupported
	}
	return []protocol.HardwareCommand{{
		Kind:      protocol.Read,
		Endpoint:  message.EndpointRx,
		FeatureID: f.ID,
		TimeoutMs: 500,
	}}, nil
}

// KeepAliveStrategy implements protocol.Handler. Lovense hardware doesn't
// require a keep-alive heartbeat to stay in its last commanded state.
func (*LovenseSingleActuator) KeepAliveStrategy() protocol.KeepAliveStrategy {
	return protocol.KeepAliveNone
}

func formVibrateCommand(f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return []protocol.HardwareCommand{{
		Kind:      protocol.Write,
		Endpoint:  message.EndpointTx,
		FeatureID: f.ID,
		Data:      []byte(fmt.Sprintf("Vibrate:%d;", speed)),
	}}, nil
}
