// Package upgrade implements the bidirectional conversion between a
// historical wire version (V0..V3) and the canonical internal form (V4)
// described in spec §4.1.
//
// up covers every historical client message except the deprecated ones
// (see Upgrader.Up), which fail with ErrDeprecated.
// down is partial: some V4 server events (sensor subscriptions chief among
// them) have no representation in older versions and are silently dropped,
// exactly as spec §4.1 requires.
package upgrade

import (
	"fmt"

	"github.com/xmidt-org/devbridge/message"
)

// Upgrader converts between one historical version's wire vocabulary and
// the canonical V4 form.
type Upgrader interface {
	// Version is the historical version this Upgrader serves.
	Version() message.Version

	// NewPayload returns a fresh zero-valued pointer for the wire message
	// named by name, suitable as a json.Unmarshal target, or ok=false if
	// this version has no message by that name at all (as opposed to one
	// with no V4 translation, which NewPayload still resolves — that
	// distinction belongs to Up).
	NewPayload(name string) (payload any, ok bool)

	// Up converts a decoded client message (named by its wire key) into its
	// canonical V4 representation. ctx supplies device feature information
	// for translations that need it (SingleMotorVibrateCmd's fanout, etc).
	// err is ErrDeprecated for messages spec §9 documents as
	// having no translation (KiirooCmd, LovenseCmd, Log, RequestLog).
	Up(name string, payload any, ctx message.DeviceContext) (m message.Message, err error)

	// Down converts a canonical V4 server message into this version's wire
	// vocabulary. ok is false when the version has no representation for m
	// (for example a V0 client receiving an InputReading from a sensor
	// subscription); this is not an error, the event is simply dropped for
	// that client.
	Down(m message.Message, ctx message.DeviceContext) (name string, payload any, ok bool)
}

// ErrDeprecated is returned by Up for messages spec §9's open question
// documents as legacy with no defined V4 translation. The session replies
// ERROR_MSG "deprecated message: <name>" and does not treat this as a
// schema failure.
type ErrDeprecated struct {
	Name string
}

// Error implements error.
func (e *ErrDeprecated) Error() string {
	return fmt.Sprintf("deprecated message: %s", e.Name)
}

var v4Payloads = map[string]func() any{
	"RequestServerInfo": func() any { return new(message.RequestServerInfo) },
	"Ping":              func() any { return new(message.Ping) },
	"StartScanning":     func() any { return new(message.StartScanning) },
	"StopScanning":      func() any { return new(message.StopScanning) },
	"RequestDeviceList": func() any { return new(message.RequestDeviceList) },
	"StopAllDevices":    func() any { return new(message.StopAllDevices) },
	"StopDeviceCmd":     func() any { return new(message.StopDeviceCmd) },
	"OutputCmd":         func() any { return new(message.OutputCmd) },
	"InputCmd":          func() any { return new(message.InputCmd) },
	"RawReadCmd":        func() any { return new(message.RawReadCmd) },
	"RawWriteCmd":       func() any { return new(message.RawWriteCmd) },
	"RawSubscribeCmd":   func() any { return new(message.RawSubscribeCmd) },
	"RawUnsubscribeCmd": func() any { return new(message.RawUnsubscribeCmd) },
}

var registry = map[message.Version]Upgrader{}

// Register adds an Upgrader to the package-level registry. Called from each
// version package's init().
func Register(u Upgrader) {
	registry[u.Version()] = u
}

// For returns the Upgrader for a negotiated spec version. The canonical V4
// version has an identity Upgrader so callers never need a special case.
func For(v message.Version) (Upgrader, bool) {
	if v == message.V4 {
		return identity{}, true
	}
	u, ok := registry[v]
	return u, ok
}

// identity is the V4 upgrader: every operation is a no-op passthrough.
type identity struct{}

func (identity) Version() message.Version { return message.V4 }

func (identity) NewPayload(name string) (any, bool) {
	f, ok := v4Payloads[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

func (identity) Up(_ string, payload any, _ message.DeviceContext) (message.Message, error) {
	m, _ := payload.(message.Message)
	return m, nil
}

func (identity) Down(m message.Message, _ message.DeviceContext) (string, any, bool) {
	return string(m.Kind()), m, true
}
