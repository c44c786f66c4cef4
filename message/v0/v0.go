// Package v0 implements the earliest supported wire vocabulary: no
// per-feature attributes, a single SingleMotorVibrateCmd that fans a scalar
// out to every vibrating feature, and device capability lists expressed as
// bare message-type-name strings.
package v0

import (
	"sort"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
)

func init() {
	upgrade.Register(Upgrader{})
}

// Empty is the payload shape for every message that carries only an Id:
// Ping, StartScanning, StopScanning, RequestDeviceList, StopAllDevices, Ok.
type Empty struct {
	Id uint32 `json:"Id"`
}

// RequestServerInfo is the V0 handshake request. V0 predates MessageVersion
// negotiation; the client is assumed to speak V0 by virtue of having picked
// this decoder.
type RequestServerInfo struct {
	Id         uint32 `json:"Id"`
	ClientName string `json:"ClientName"`
}

// ServerInfo is the V0 handshake reply. V0 predates MajorVersion etc; only
// the fields the original protocol actually carried are kept.
type ServerInfo struct {
	Id          uint32 `json:"Id"`
	ServerName  string `json:"ServerName"`
	MaxPingTime uint32 `json:"MaxPingTime"`
}

// Error is the V0 error reply shape.
type Error struct {
	Id           uint32 `json:"Id"`
	ErrorMessage string `json:"ErrorMessage"`
	ErrorCode    int    `json:"ErrorCode"`
}

// SingleMotorVibrateCmd vibrates every vibrating feature on a device at the same
// normalized speed. Speed is a float in [0,1], unlike every later version's
// integer scalar.
type SingleMotorVibrateCmd struct {
	Id          uint32  `json:"Id"`
	DeviceIndex uint32  `json:"DeviceIndex"`
	Speed       float64 `json:"Speed"`
}

// StopDeviceCmd stops every output feature on one device.
type StopDeviceCmd struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// DeviceRemoved is the V0 device-removed event shape.
type DeviceRemoved struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Device is the V0 projection of a device: capabilities as bare message
// type names, no feature attributes.
type Device struct {
	Id             uint32   `json:"Id,omitempty"`
	DeviceName     string   `json:"DeviceName"`
	DeviceIndex    uint32   `json:"DeviceIndex"`
	DeviceMessages []string `json:"DeviceMessages"`
}

// DeviceList is the V0 reply to RequestDeviceList.
type DeviceList struct {
	Id      uint32   `json:"Id"`
	Devices []Device `json:"Devices"`
}

// Log and RequestLog are deprecated: spec §9 documents them as having no
// V4 translation. They are decoded (so schema validation still succeeds)
// but Up() always returns ErrDeprecated for them.
type Log struct {
	Id         uint32 `json:"Id"`
	LogLevel   string `json:"LogLevel"`
	LogMessage string `json:"LogMessage"`
}

// RequestLog is deprecated; see Log.
type RequestLog struct {
	Id       uint32 `json:"Id"`
	LogLevel string `json:"LogLevel"`
}

// KiirooCmd is deprecated; see Log.
type KiirooCmd struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Command     string `json:"Command"`
}

// LovenseCmd is deprecated; see Log.
type LovenseCmd struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Command     string `json:"Command"`
}

// Upgrader implements upgrade.Upgrader for V0.
type Upgrader struct{}

// Version implements upgrade.Upgrader.
func (Upgrader) Version() message.Version { return message.V0 }

var payloads = map[string]func() any{
	"RequestServerInfo":     func() any { return new(RequestServerInfo) },
	"Ping":                  func() any { return new(Empty) },
	"StartScanning":         func() any { return new(Empty) },
	"StopScanning":          func() any { return new(Empty) },
	"RequestDeviceList":     func() any { return new(Empty) },
	"StopAllDevices":        func() any { return new(Empty) },
	"StopDeviceCmd":         func() any { return new(StopDeviceCmd) },
	"SingleMotorVibrateCmd": func() any { return new(SingleMotorVibrateCmd) },
	"Log":                   func() any { return new(Log) },
	"RequestLog":            func() any { return new(RequestLog) },
	"KiirooCmd":             func() any { return new(KiirooCmd) },
	"LovenseCmd":            func() any { return new(LovenseCmd) },
}

// NewPayload implements upgrade.Upgrader.
func (Upgrader) NewPayload(name string) (any, bool) {
	f, ok := payloads[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Up implements upgrade.Upgrader.
func (Upgrader) Up(name string, payload any, ctx message.DeviceContext) (message.Message, error) {
	switch name {
	case "RequestServerInfo":
		p := payload.(*RequestServerInfo)
		return withID(&message.RequestServerInfo{
			ClientName:     p.ClientName,
			MessageVersion: uint32(message.V0),
		}, p.Id), nil

	case "Ping":
		return withID(&message.Ping{}, payload.(*Empty).Id), nil

	case "StartScanning":
		return withID(&message.StartScanning{}, payload.(*Empty).Id), nil

	case "StopScanning":
		return withID(&message.StopScanning{}, payload.(*Empty).Id), nil

	case "RequestDeviceList":
		return withID(&message.RequestDeviceList{}, payload.(*Empty).Id), nil

	case "StopAllDevices":
		return withID(&message.StopAllDevices{}, payload.(*Empty).Id), nil

	case "StopDeviceCmd":
		p := payload.(*StopDeviceCmd)
		return withID(&message.StopDeviceCmd{DeviceIndex: p.DeviceIndex}, p.Id), nil

	case "SingleMotorVibrateCmd":
		p := payload.(*SingleMotorVibrateCmd)
		var cmds []message.OutputCommand
		if ctx != nil {
			for _, f := range ctx.FeaturesByActuator(p.DeviceIndex, message.ActuatorVibrate) {
				scalar := f.Min + uint32(p.Speed*float64(f.Max-f.Min)+0.5)
				cmds = append(cmds, message.OutputCommand{
					FeatureIndex: f.Index,
					Value:        &message.ScalarCommand{ActuatorType: message.ActuatorVibrate, Scalar: scalar},
				})
			}
		}
		return withID(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	case "Log", "RequestLog", "KiirooCmd", "LovenseCmd":
		return nil, &upgrade.ErrDeprecated{Name: name}

	default:
		return nil, &upgrade.ErrDeprecated{Name: name}
	}
}

// Down implements upgrade.Upgrader.
func (Upgrader) Down(m message.Message, ctx message.DeviceContext) (string, any, bool) {
	switch v := m.(type) {
	case *message.ServerInfo:
		return "ServerInfo", &ServerInfo{Id: v.ID(), ServerName: v.ServerName, MaxPingTime: v.MaxPingTime}, true

	case *message.Ok:
		return "Ok", &Empty{Id: v.ID()}, true

	case *message.Error:
		return "Error", &Error{Id: v.ID(), ErrorMessage: v.ErrorMessage, ErrorCode: int(v.ErrorCode)}, true

	case *message.ScanningFinished:
		return "ScanningFinished", &Empty{Id: v.ID()}, true

	case *message.DeviceAdded:
		return "DeviceAdded", deviceEntryToV0(v.DeviceEntry, v.ID()), true

	case *message.DeviceRemoved:
		return "DeviceRemoved", &DeviceRemoved{Id: v.ID(), DeviceIndex: v.DeviceIndex}, true

	case *message.DeviceList:
		entries := make([]Device, 0, len(v.Devices))
		for _, d := range v.Devices {
			entries = append(entries, *deviceEntryToV0(d, 0))
		}
		return "DeviceList", &DeviceList{Id: v.ID(), Devices: entries}, true

	default:
		// InputReading (sensor subscriptions), RawReading, and every other
		// V4-only event have no V0 representation: drop silently.
		return "", nil, false
	}
}

func deviceEntryToV0(d message.DeviceEntry, id uint32) *Device {
	names := make([]string, 0, len(d.DeviceMessages))
	for name := range d.DeviceMessages {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Device{
		Id:             id,
		DeviceName:     d.DeviceName,
		DeviceIndex:    d.DeviceIndex,
		DeviceMessages: names,
	}
}

func withID(m message.Message, id uint32) message.Message {
	m.SetID(id)
	return m
}
