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

// Package session implements the client session state machine from spec
// §4.3 (C4): handshake negotiation, the ping watchdog, request-id
// correlation, and the stop-all-on-disconnect contract. It is the one
// place control flow from every other core package converges: connector
// events arrive here, get decoded by the serializer, routed to the device
// manager or handled locally, and the replies/events get downgraded and
// sent back out.
//
// The goroutine shape — one loop owning the session's mutable state,
// fed by channels rather than locks — follows the teacher's device
// manager readPump, which never shares device state across goroutines
// except through the registry's own lock.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/internal/metrics"
	"github.com/xmidt-org/devbridge/internal/xerror"
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/serializer"
)

// State is one of the three session lifecycle states from spec §4.3.
type State int

// Recognized states.
const (
	AwaitingHandshake State = iota
	Active
	Disconnecting
)

// String implements fmt.Stringer for log lines.
func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "AwaitingHandshake"
	case Active:
		return "Active"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// DeviceManager is the subset of device.Manager the session needs. It is
// defined here, not in package device, so session depends on a narrow
// interface rather than the concrete manager (mirrors the teacher's
// Connector/Router/Registry split in vendor device.Manager).
type DeviceManager interface {
	message.DeviceContext

	StartScanning(ctx context.Context) error
	StopScanning(ctx context.Context) error
	DeviceList(ctx context.Context) []message.DeviceEntry

	// Dispatch routes one device-addressed command (StopDeviceCmd,
	// OutputCmd, InputCmd, or a Raw* message) and returns
	// the reply to send (an Ok, an InputReading, or an Error-carrying
	// *xerror* wrapped error).
	Dispatch(ctx context.Context, cmd message.Message) (message.Message, error)

	// Events delivers unsolicited server events: DeviceAdded,
	// DeviceRemoved, ScanningFinished, and InputReading from active
	// subscriptions. Every event on this channel has Id == message.SystemID.
	Events() <-chan message.Message

	// StopAll commands every live device's every output feature to zero.
	// Used on ping expiry and on disconnect.
	StopAll(ctx context.Context) error
}

// Config bundles a Session's fixed parameters.
type Config struct {
	ServerName  string
	MaxVersion  message.Version
	MaxPingTime time.Duration // 0 disables the ping watchdog, per spec §4.3.
	Logger      log.Logger

	// Measures records handshake outcomes and ping expirations. Nil is
	// safe to pass: every Measures method tolerates a nil receiver.
	Measures *metrics.Measures
}

// Session drives one client connection end to end: it is the sole
// goroutine that touches connVersion and state, so neither needs its own
// lock. Request/reply correlation (spec §3's RequestTable) falls out for
// free here because DeviceManager.Dispatch is synchronous from this
// goroutine's point of view — the "suspension" spec §5 describes for
// device dispatch is this goroutine blocking on the Dispatch call, not a
// separate wait table keyed by Id. A Subscribe reply still arrives
// in-line (an Ok); the InputReadings it later produces are unsolicited
// events carrying Id = SystemID, delivered through Events(), not matched
// against any request.
type Session struct {
	cfg        Config
	conn       *connector.Connector
	serializer *serializer.Serializer
	devices    DeviceManager

	logger   log.Logger
	errorLog log.Logger
	debugLog log.Logger

	state       State
	connVersion message.Version

	lastPing time.Time
}

// New constructs a Session. Run must be called to drive it.
func New(cfg Config, conn *connector.Connector, ser *serializer.Serializer, devices DeviceManager) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Session{
		cfg:        cfg,
		conn:       conn,
		serializer: ser,
		devices:    devices,
		logger:     logger,
		errorLog:   level.Error(logger),
		debugLog:   level.Debug(logger),
		state:      AwaitingHandshake,
	}
}

// Run blocks for the lifetime of the session: it pumps connector events,
// device-manager events and the ping watchdog until the transport closes
// or ctx is cancelled. It always leaves with a stop-all broadcast
// attempted (spec §4.3 "Any + transport-Close").
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown(ctx)

	var pingTicker *time.Ticker
	var pingChan <-chan time.Time
	if s.cfg.MaxPingTime > 0 {
		pingTicker = time.NewTicker(s.cfg.MaxPingTime)
		defer pingTicker.Stop()
		pingChan = pingTicker.C
		s.lastPing = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.conn.Done():
			return nil

		case ev, ok := <-s.conn.Events():
			if !ok {
				return nil
			}
			if err := s.handleConnectorEvent(ctx, ev); err != nil {
				return err
			}

		case ev, ok := <-s.devices.Events():
			if !ok {
				continue
			}
			s.sendEvents(ctx, ev)

		case <-pingChan:
			if s.state == Active && time.Since(s.lastPing) > s.cfg.MaxPingTime {
				s.onPingExpired(ctx)
				return nil
			}
		}
	}
}

func (s *Session) handleConnectorEvent(ctx context.Context, ev connector.Event) error {
	switch ev.Type {
	case connector.Connected:
		s.debugLog.Log("msg", "transport connected")
		return nil
	case connector.Closed:
		return nil
	case connector.TransportError:
		s.errorLog.Log("msg", "transport error", "err", ev.Err)
		return ev.Err
	case connector.MessageReceived:
		s.handleFrame(ctx, ev.Data)
		return nil
	default:
		return nil
	}
}

// handleFrame decodes one inbound wire frame and processes each contained
// message independently, per spec §4.2's "batches are independent".
func (s *Session) handleFrame(ctx context.Context, raw []byte) {
	version := s.connVersion
	if s.state == AwaitingHandshake {
		version = message.MaxVersion
	}

	decoded, err := s.serializer.Decode(raw, version, s.devices)
	if err != nil {
		s.sendEvents(ctx, xerror.ToWireError(message.SystemID, xerror.Wrap(xerror.KindMsg, err)))
		return
	}

	var replies []message.Message
	for _, d := range decoded {
		if d.Err != nil {
			replies = append(replies, xerror.ToWireError(d.ID, xerror.Wrap(xerror.KindMsg, d.Err)))
			continue
		}
		if reply := s.handleMessage(ctx, d.Message); reply != nil {
			replies = append(replies, reply)
		}
	}
	if len(replies) > 0 {
		s.sendEvents(ctx, replies...)
	}
}

// handleMessage processes one decoded V4 message per the state machine in
// spec §4.3 and returns the reply to send, or nil if no reply is needed
// (e.g. an event was already sent directly).
func (s *Session) handleMessage(ctx context.Context, m message.Message) message.Message {
	if s.state == AwaitingHandshake {
		rsi, ok := m.(*message.RequestServerInfo)
		if !ok {
			return xerror.ToWireError(m.ID(), xerror.Wrap(xerror.KindHandshake, fmt.Errorf("expected RequestServerInfo, got %s", m.Kind())))
		}
		return s.handshake(rsi)
	}

	switch msg := m.(type) {
	case *message.Ping:
		s.lastPing = time.Now()
		reply := &message.Ok{}
		reply.SetID(msg.ID())
		return reply

	case *message.StartScanning:
		if err := s.devices.StartScanning(ctx); err != nil {
			return xerror.ToWireError(msg.ID(), err)
		}
		reply := &message.Ok{}
		reply.SetID(msg.ID())
		return reply

	case *message.StopScanning:
		if err := s.devices.StopScanning(ctx); err != nil {
			return xerror.ToWireError(msg.ID(), err)
		}
		reply := &message.Ok{}
		reply.SetID(msg.ID())
		return reply

	case *message.RequestDeviceList:
		list := &message.DeviceList{Devices: s.devices.DeviceList(ctx)}
		list.SetID(msg.ID())
		return list

	case *message.StopDeviceCmd, *message.OutputCmd, *message.InputCmd,
		*message.RawReadCmd, *message.RawWriteCmd, *message.RawSubscribeCmd, *message.RawUnsubscribeCmd:
		reply, err := s.devices.Dispatch(ctx, m)
		if err != nil {
			return xerror.ToWireError(m.ID(), err)
		}
		return reply

	case *message.StopAllDevices:
		if err := s.devices.StopAll(ctx); err != nil {
			return xerror.ToWireError(msg.ID(), err)
		}
		reply := &message.Ok{}
		reply.SetID(msg.ID())
		return reply

	default:
		return xerror.ToWireError(m.ID(), xerror.Wrap(xerror.KindMsg, fmt.Errorf("unhandled message %s", m.Kind())))
	}
}

// handshake implements the AwaitingHandshake -> Active transition, or a
// HANDSHAKE error reply if the client asked for a version newer than this
// server supports (spec §8 boundary behavior).
func (s *Session) handshake(rsi *message.RequestServerInfo) message.Message {
	requested := message.Version(rsi.MessageVersion)
	max := s.cfg.MaxVersion
	if max == 0 {
		max = message.MaxVersion
	}
	if requested > max {
		s.cfg.Measures.ObserveHandshake(false)
		return xerror.ToWireError(rsi.ID(), xerror.Wrap(xerror.KindHandshake,
			fmt.Errorf("requested spec version %d exceeds server max %d", requested, max)))
	}

	s.cfg.Measures.ObserveHandshake(true)
	s.connVersion = requested
	s.state = Active
	s.lastPing = time.Now()

	info := &message.ServerInfo{
		ServerName:     s.cfg.ServerName,
		MessageVersion: uint32(requested),
		MaxPingTime:    uint32(s.cfg.MaxPingTime / time.Millisecond),
	}
	info.SetID(rsi.ID())
	return info
}

// onPingExpired implements spec §4.3's ping-watchdog-expiry transition:
// stop every device, emit Error{PING}, move to Disconnecting.
func (s *Session) onPingExpired(ctx context.Context) {
	s.state = Disconnecting
	s.cfg.Measures.IncPingExpirations()
	if err := s.devices.StopAll(ctx); err != nil {
		s.errorLog.Log("msg", "stop-all on ping expiry failed", "err", err)
	}
	s.sendEvents(ctx, xerror.ToWireError(message.SystemID, xerror.Wrap(xerror.KindPing, fmt.Errorf("no Ping within %s", s.cfg.MaxPingTime))))
}

// teardown runs on every exit path from Run: transport close, ctx
// cancellation, or ping expiry. It is idempotent enough to call more than
// once because Close/StopAll tolerate repeated calls.
func (s *Session) teardown(ctx context.Context) {
	_ = s.devices.StopAll(ctx)
	_ = s.conn.Close()
}

// sendEvents downgrades and frames msgs for the negotiated version and
// hands the result to the connector. Errors are logged, not returned:
// a failed send shouldn't unwind the session loop.
func (s *Session) sendEvents(ctx context.Context, msgs ...message.Message) {
	version := s.connVersion
	if s.state == AwaitingHandshake {
		version = message.MaxVersion
	}

	raw, err := s.serializer.Encode(msgs, version, s.devices)
	if err != nil {
		s.errorLog.Log("msg", "encoding outbound messages failed", "err", err)
		return
	}
	if err := s.conn.Send(raw); err != nil {
		s.errorLog.Log("msg", "sending outbound frame failed", "err", err)
	}
}
