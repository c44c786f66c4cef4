/**
 * Copyright 2017 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package protocol implements the protocol handler registry & dispatcher
// from spec §4.5 (C6): a Handler is a named bundle of capability-specific
// byte emitters; the registry maps a protocol-name string (resolved by
// device/config) to a constructor, mirroring spec §9's "tagged variants
// replace trait-object hierarchies" — dispatch here is an interface call,
// not a type switch, because the set of protocols is registered at
// runtime (package protocol/handlers populates it via init()), not known
// to this package at compile time.
package protocol

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/xmidt-org/devbridge/message"
)

// KeepAliveStrategy tells the generic command manager (package
// protocol/command) whether and how it must re-emit a feature's last
// packet to keep the hardware from timing out.
type KeepAliveStrategy int

// Recognized strategies (spec §4.5).
const (
	KeepAliveNone KeepAliveStrategy = iota
	KeepAliveRepeatLastPacket
	KeepAliveHardwareRequiredRepeatLastPacket
)

// WriteKind distinguishes the four things a HardwareCommand can ask a
// Transport endpoint to do (spec §6 "Hardware endpoint contract").
type WriteKind int

// Recognized kinds.
const (
	Write WriteKind = iota
	Read
	Subscribe
	Unsubscribe
)

// HardwareCommand is one addressed operation a Handler asks the device's
// endpoint contract to perform. FeatureID tags it for channel
// demultiplexing when a protocol-level UUID updates more than one
// feature atomically (spec §4.5 LiboShark).
type HardwareCommand struct {
	Kind              WriteKind
	Endpoint          message.Endpoint
	FeatureIndex      uint32
	FeatureID         uuid.UUID
	Data              []byte
	WriteWithResponse bool
	ExpectedLength    uint32
	TimeoutMs         uint32
}

// Feature is the handler-facing view of one DeviceFeature: enough to
// encode a command without reaching back into the device record.
type Feature struct {
	Index    uint32
	ID       uuid.UUID
	Actuator message.ActuatorType
	Input    message.InputType
	Min, Max uint32
}

// Handler translates the canonical verb set into HardwareCommands for one
// device's protocol. Every method returns zero or more commands; a
// handler that doesn't support a verb returns ErrUnsupported. Handlers
// are constructed per-device (spec §4.5 "state machines within specific
// handlers ... scoped to the handler instance"), so internal state
// (packed multi-feature encoders, previous-position trackers) never
// leaks across devices.
type Handler interface {
	Name() string

	Vibrate(ctx context.Context, f Feature, speed uint32) ([]HardwareCommand, error)
	Rotate(ctx context.Context, f Feature, speed uint32) ([]HardwareCommand, error)
	Oscillate(ctx context.Context, f Feature, speed uint32) ([]HardwareCommand, error)
	RotateWithDirection(ctx context.Context, f Feature, speed uint32, clockwise bool) ([]HardwareCommand, error)
	PositionWithDuration(ctx context.Context, f Feature, position, durationMs uint32) ([]HardwareCommand, error)

	ReadInput(ctx context.Context, f Feature) ([]HardwareCommand, error)
	SubscribeInput(ctx context.Context, f Feature) ([]HardwareCommand, error)
	UnsubscribeInput(ctx context.Context, f Feature) ([]HardwareCommand, error)

	// HandleRaw is the optional pass-through surface for RawReadCmd /
	// RawWriteCmd / RawSubscribeCmd / RawUnsubscribeCmd. Handlers that
	// don't need it can embed Unimplemented and inherit ErrUnsupported.
	HandleRaw(ctx context.Context, cmd message.Message) ([]HardwareCommand, error)

	KeepAliveStrategy() KeepAliveStrategy
	NeedsFullCommandSet() bool

	// Reset clears any per-device state (Kiiroo's 3-slot array, Vorze's
	// previous_position). Called on device removal.
	Reset()
}

// ErrUnsupported is returned by a Handler method the protocol doesn't
// implement. The dispatcher maps it to DEVICE_UNSUPPORTED.
var ErrUnsupported = fmt.Errorf("protocol: capability not supported by this handler")

// Unimplemented can be embedded by a Handler to default every capability
// to ErrUnsupported; concrete handlers override only what they support.
type Unimplemented struct{}

func (Unimplemented) Vibrate(context.Context, Feature, uint32) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) Rotate(context.Context, Feature, uint32) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) Oscillate(context.Context, Feature, uint32) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) RotateWithDirection(context.Context, Feature, uint32, bool) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) PositionWithDuration(context.Context, Feature, uint32, uint32) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) ReadInput(context.Context, Feature) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) SubscribeInput(context.Context, Feature) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) UnsubscribeInput(context.Context, Feature) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) HandleRaw(context.Context, message.Message) ([]HardwareCommand, error) {
	return nil, ErrUnsupported
}
func (Unimplemented) KeepAliveStrategy() KeepAliveStrategy { return KeepAliveNone }
func (Unimplemented) NeedsFullCommandSet() bool            { return false }
func (Unimplemented) Reset()                               {}

// Constructor builds a fresh Handler instance for one device.
type Constructor func() Handler

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a protocol constructor under name. Called from each
// concrete handler package's init(), mirroring message/upgrade's
// version-registry pattern.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New constructs a fresh Handler for the named protocol.
func New(name string) (Handler, bool) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// Names returns every registered protocol name, for diagnostics.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
