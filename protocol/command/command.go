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

// Package command implements the generic command manager from spec §4.5
// (C7): a per-device, per-feature cache of the last commanded value that
// deduplicates repeat commands (except for handlers that need the full
// command set) and drives the keep-alive re-emission a handler's
// KeepAliveStrategy asks for. It does not expand partial commands into a
// full per-feature vector.
package command

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/xmidt-org/devbridge/internal/metrics"
	"github.com/xmidt-org/devbridge/protocol"
)

// Sender emits HardwareCommands produced by a keep-alive re-emission. The
// per-device task in package device implements this by writing to the
// device's hardware endpoint.
type Sender interface {
	Send(ctx context.Context, cmds []protocol.HardwareCommand) error
}

// actuatorState is the last value commanded on one output feature.
type actuatorState struct {
	value uint32
	cmds  []protocol.HardwareCommand
}

// Manager tracks per-feature last-sent state for one device and drives
// its handler's keep-alive strategy on a timer.
type Manager struct {
	handler protocol.Handler
	sender  Sender

	mu     sync.Mutex
	states map[uint32]actuatorState

	keepAlive time.Duration
	measures  *metrics.Measures

	stopOnce sync.Once
	stop     chan struct{}
}

// New constructs a command Manager for one device's handler. keepAlive is
// the re-emission period used when the handler's strategy isn't None;
// spec §9's open question leaves the exact frequency device-specific, so
// callers pass a configured default (≈1s) rather than this package
// guessing one. measures may be nil; every Measures method tolerates a
// nil receiver.
func New(handler protocol.Handler, sender Sender, keepAlive time.Duration, measures *metrics.Measures) *Manager {
	if keepAlive <= 0 {
		keepAlive = time.Second
	}
	return &Manager{
		handler:   handler,
		sender:    sender,
		states:    make(map[uint32]actuatorState),
		keepAlive: keepAlive,
		measures:  measures,
		stop:      make(chan struct{}),
	}
}

// Apply dedups cmd against the last value sent for featureIndex, unless
// the handler's NeedsFullCommandSet is true, in which case every command
// is forwarded. Apply does not expand the command against other cached
// features: emit produces the HardwareCommands for exactly this one
// feature's new value (the handler call itself), and handlers that need
// the other features' values (LiboShark, KiirooV2Vibrator) keep them in
// their own state. Apply caches and forwards the result.
func (m *Manager) Apply(ctx context.Context, featureIndex uint32, value uint32, emit func() ([]protocol.HardwareCommand, error)) ([]protocol.HardwareCommand, error) {
	m.mu.Lock()
	prev, seen := m.states[featureIndex]
	dedup := seen && prev.value == value && !m.handler.NeedsFullCommandSet()
	m.mu.Unlock()

	if dedup {
		return nil, nil
	}

	cmds, err := emit()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.states[featureIndex] = actuatorState{value: value, cmds: cmds}
	m.mu.Unlock()

	return cmds, nil
}

// snapshot returns every feature's most recently applied command set, for
// keep-alive re-emission.
func (m *Manager) snapshot() []protocol.HardwareCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []protocol.HardwareCommand
	for _, s := range m.states {
		all = append(all, s.cmds...)
	}
	return all
}

// Run drives the keep-alive loop until ctx is cancelled or Stop is
// called. It is a no-op for handlers whose KeepAliveStrategy is None.
func (m *Manager) Run(ctx context.Context) {
	if m.handler.KeepAliveStrategy() == protocol.KeepAliveNone {
		return
	}

	// A required keep-alive (HardwareRequiredRepeatLastPacket) can't be
	// allowed to lapse just because one write failed transiently: back off
	// and retry rather than give up on the first error. A best-effort
	// keep-alive (RepeatLastPacket) settles for the same retry, just with
	// lower stakes if it's eventually abandoned.
	retry := &backoff.Backoff{
		Min:    m.keepAlive / 4,
		Max:    m.keepAlive * 4,
		Factor: 2,
		Jitter: true,
	}

	ticker := time.NewTicker(m.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			cmds := m.snapshot()
			if len(cmds) == 0 {
				continue
			}
			_ = m.sendWithRetry(ctx, cmds, retry)
		}
	}
}

// sendWithRetry retries a failed keep-alive send with exponential
// backoff (each wait capped at retry.Max), up to 3 retries, then gives up
// for this tick.
func (m *Manager) sendWithRetry(ctx context.Context, cmds []protocol.HardwareCommand, retry *backoff.Backoff) error {
	retry.Reset()
	for {
		err := m.sender.Send(ctx, cmds)
		if err == nil {
			return nil
		}
		wait := retry.Duration()
		if retry.Attempt() > 3 {
			return err
		}
		m.measures.IncKeepAliveRetries()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Stop halts the keep-alive loop. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Reset clears cached per-feature state and the handler's own internal
// state (spec §4.5 "cleared on device removal").
func (m *Manager) Reset() {
	m.mu.Lock()
	m.states = make(map[uint32]actuatorState)
	m.mu.Unlock()
	m.handler.Reset()
}
