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

// Package device implements the device manager from spec §4.4 (C5): it
// aggregates hardware communication managers, owns the device index
// table, emits DeviceAdded/DeviceRemoved/ScanningFinished, and dispatches
// device-addressed commands to the right protocol handler.
//
// The per-device task shape — one goroutine serializing that device's
// writes, fed by a buffered channel and a shutdown channel closed exactly
// once — is the teacher's per-device writePump, adapted from WRP message
// framing to HardwareCommand framing.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"

	"github.com/xmidt-org/devbridge/internal/metrics"
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
	"github.com/xmidt-org/devbridge/protocol/command"
)

// errDeviceStopped is returned by Dispatch once the device's per-device
// task has been stopped (device removed, server shutting down).
var errDeviceStopped = errors.New("device: stopped")

// Feature is the server-side record of one DeviceFeature (spec §3).
type Feature struct {
	Index       uint32
	ID          uuid.UUID
	Actuator    message.ActuatorType
	Input       message.InputType
	Min, Max    uint32
	StepCount   uint32
	Description string
	Endpoint    message.Endpoint
}

// Endpoint is the hardware endpoint contract from spec §6, consumed, not
// defined, by the core: a connected transport-level handle to one
// physical device, addressable by logical Endpoint.
type Endpoint interface {
	WriteValue(ctx context.Context, featureIDs []uuid.UUID, endpoint message.Endpoint, data []byte, writeWithResponse bool) error
	ReadValue(ctx context.Context, endpoint message.Endpoint, length int, timeout time.Duration) ([]byte, error)
	Subscribe(ctx context.Context, endpoint message.Endpoint) (<-chan []byte, error)
	Unsubscribe(ctx context.Context, endpoint message.Endpoint) error
	Disconnect() error
}

// task is one unit of work the per-device goroutine executes: a batch of
// HardwareCommands produced by one dispatched verb, plus the channel to
// deliver the outcome on.
type task struct {
	cmds   []protocol.HardwareCommand
	result chan taskResult
}

type taskResult struct {
	reading *message.InputReading
	err     error
}

// Device is the server-side record of one connected device (spec §3):
// index, name, feature list, a handle to the hardware endpoint, and a
// handle to its protocol handler. Index is assigned once by the registry
// and never reused. Removal calls Stop, which ends the per-device task;
// dispatches after that are rejected with errDeviceStopped.
type Device struct {
	Index             uint32
	Name              string
	DisplayName       string
	Identifier        string
	Protocol          string
	Features          []Feature
	DeviceMessageGap  time.Duration

	endpoint Endpoint
	handler  protocol.Handler
	commands *command.Manager
	notify   func(message.Message)

	logger log.Logger

	tasks    chan task
	shutdown chan struct{}
	done     chan struct{}
	life     context.Context
	lifeStop context.CancelFunc

	subMu sync.Mutex
	subs  map[uint32]context.CancelFunc

	defunct bool
}

// newDevice constructs a Device and starts its per-device task. The
// caller (Manager) is responsible for registering it and, eventually,
// calling Stop. notify delivers InputReadings produced by an active
// subscription as unsolicited events (spec §4.4's per-(device,feature)
// subscription table); it may be nil in tests that don't exercise
// subscriptions.
func newDevice(index uint32, entry registeredEntry, endpoint Endpoint, handler protocol.Handler, keepAlive time.Duration, logger log.Logger, notify func(message.Message), measures *metrics.Measures) *Device {
	life, lifeStop := context.WithCancel(context.Background())
	d := &Device{
		Index:       index,
		Name:        entry.Name,
		DisplayName: entry.DisplayName,
		Identifier:  entry.Identifier,
		Protocol:    entry.Protocol,
		Features:    entry.Features,
		endpoint:    endpoint,
		handler:     handler,
		notify:      notify,
		logger:      logger,
		tasks:       make(chan task, 16),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		life:        life,
		lifeStop:    lifeStop,
		subs:        make(map[uint32]context.CancelFunc),
	}

	sender := endpointSender{endpoint: endpoint}
	d.commands = command.New(handler, sender, keepAlive, measures)

	go d.run()
	return d
}

// registeredEntry is the resolved configuration for one discovered
// device, produced by probing config.Table.
type registeredEntry struct {
	Protocol    string
	Name        string
	DisplayName string
	Identifier  string
	Features    []Feature
}

// endpointSender adapts an Endpoint to command.Sender so the keep-alive
// loop can reuse the same write path as a live dispatch.
type endpointSender struct {
	endpoint Endpoint
}

func (s endpointSender) Send(ctx context.Context, cmds []protocol.HardwareCommand) error {
	for _, c := range cmds {
		if c.Kind != protocol.Write {
			continue
		}
		if err := s.endpoint.WriteValue(ctx, []uuid.UUID{c.FeatureID}, c.Endpoint, c.Data, c.WriteWithResponse); err != nil {
			return err
		}
	}
	return nil
}

// run is the per-device goroutine: it serializes every hardware write and
// read so the transport sees one outstanding operation at a time (spec
// §5 "each device has one task that serializes its hardware writes and
// reads").
func (d *Device) run() {
	defer close(d.done)
	go d.commands.Run(contextForShutdown(d.shutdown))

	for {
		select {
		case <-d.shutdown:
			return
		case t := <-d.tasks:
			t.result <- d.execute(t.cmds)
		}
	}
}

func (d *Device) execute(cmds []protocol.HardwareCommand) taskResult {
	ctx := context.Background()
	for _, c := range cmds {
		switch c.Kind {
		case protocol.Write:
			if err := d.endpoint.WriteValue(ctx, []uuid.UUID{c.FeatureID}, c.Endpoint, c.Data, c.WriteWithResponse); err != nil {
				return taskResult{err: err}
			}
		case protocol.Read:
			timeout := time.Duration(c.TimeoutMs) * time.Millisecond
			if timeout <= 0 {
				timeout = 500 * time.Millisecond
			}
			data, err := d.endpoint.ReadValue(ctx, c.Endpoint, int(c.ExpectedLength), timeout)
			if err != nil {
				return taskResult{err: err}
			}
			reading := &message.InputReading{
				DeviceIndex:  d.Index,
				FeatureIndex: c.FeatureIndex,
				Data:         bytesToInt32(data),
			}
			return taskResult{reading: reading}
		case protocol.Subscribe:
			if err := d.startSubscription(c); err != nil {
				return taskResult{err: err}
			}
		case protocol.Unsubscribe:
			d.stopSubscription(c.FeatureIndex)
			if err := d.endpoint.Unsubscribe(ctx, c.Endpoint); err != nil {
				return taskResult{err: err}
			}
		}
	}
	return taskResult{}
}

// startSubscription opens the hardware subscription for c's feature, if
// not already open, and forwards every value it emits as an unsolicited
// InputReading (Id = message.SystemID) until Unsubscribe or Stop.
// Re-subscribing an already-subscribed feature is a no-op success.
func (d *Device) startSubscription(c protocol.HardwareCommand) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	if _, active := d.subs[c.FeatureIndex]; active {
		return nil
	}

	ctx, cancel := context.WithCancel(d.life)
	ch, err := d.endpoint.Subscribe(ctx, c.Endpoint)
	if err != nil {
		cancel()
		return err
	}

	d.subs[c.FeatureIndex] = cancel
	go d.pumpSubscription(ctx, c.FeatureIndex, ch)
	return nil
}

func (d *Device) pumpSubscription(ctx context.Context, featureIndex uint32, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if d.notify == nil {
				continue
			}
			reading := &message.InputReading{DeviceIndex: d.Index, FeatureIndex: featureIndex, Data: bytesToInt32(data)}
			reading.SetID(message.SystemID)
			d.notify(reading)
		}
	}
}

func (d *Device) stopSubscription(featureIndex uint32) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if cancel, active := d.subs[featureIndex]; active {
		cancel()
		delete(d.subs, featureIndex)
	}
}

// Dispatch enqueues cmds and blocks for the per-device task's result,
// modeling spec §5's "device dispatch suspends awaiting the per-device
// task to enqueue".
func (d *Device) Dispatch(ctx context.Context, cmds []protocol.HardwareCommand) (*message.InputReading, error) {
	t := task{cmds: cmds, result: make(chan taskResult, 1)}
	select {
	case d.tasks <- t:
	case <-d.shutdown:
		return nil, errDeviceStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-t.result:
		return r.reading, r.err
	case <-d.shutdown:
		return nil, errDeviceStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop ends the per-device task and disconnects its hardware endpoint.
// Safe to call more than once.
func (d *Device) Stop() {
	select {
	case <-d.shutdown:
		return
	default:
		close(d.shutdown)
	}
	d.commands.Stop()
	<-d.done
	d.commands.Reset()
	d.lifeStop()
	_ = d.endpoint.Disconnect()
}

// Handler returns the device's protocol handler, used by Manager to
// build HardwareCommands before calling Dispatch.
func (d *Device) Handler() protocol.Handler { return d.handler }

// Commands returns the device's generic command manager, used for
// per-feature dedup/full-set expansion before dispatch.
func (d *Device) Commands() *command.Manager { return d.commands }

func contextForShutdown(shutdown <-chan struct{}) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-shutdown
		cancel()
	}()
	return ctx
}

func bytesToInt32(data []byte) []int32 {
	out := make([]int32, len(data))
	for i, b := range data {
		out[i] = int32(b)
	}
	return out
}
