// Package v2 adds sensor reads (BatteryLevelCmd, RSSILevelCmd) and raw
// endpoint access (RawReadCmd family) on top of v1.
package v2

import (
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
	"github.com/xmidt-org/devbridge/message/v1"
)

func init() {
	upgrade.Register(Upgrader{})
}

// DeviceIndexed is shared by BatteryLevelCmd and RSSILevelCmd: both simply
// address a device, with no per-feature index since v2 predates first-class
// features.
type DeviceIndexed struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// BatteryLevelReading is the reply to BatteryLevelCmd.
type BatteryLevelReading struct {
	Id            uint32  `json:"Id"`
	DeviceIndex   uint32  `json:"DeviceIndex"`
	BatteryLevel  float64 `json:"BatteryLevel"`
}

// RSSILevelReading is the reply to RSSILevelCmd.
type RSSILevelReading struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	RSSILevel   int32  `json:"RSSILevel"`
}

// RawReadCmd, RawWriteCmd, RawSubscribeCmd and RawUnsubscribeCmd carry
// unchanged from v2 onward (spec §4.1) gated on a server-side
// allow-raw-messages flag enforced by device.Manager, not here.
type RawReadCmd struct {
	Id             uint32          `json:"Id"`
	DeviceIndex    uint32          `json:"DeviceIndex"`
	Endpoint       string          `json:"Endpoint"`
	ExpectedLength uint32          `json:"ExpectedLength"`
	Timeout        uint32          `json:"Timeout"`
}

// RawWriteCmd writes raw bytes to an endpoint.
type RawWriteCmd struct {
	Id                uint32 `json:"Id"`
	DeviceIndex       uint32 `json:"DeviceIndex"`
	Endpoint          string `json:"Endpoint"`
	Data              []byte `json:"Data"`
	WriteWithResponse bool   `json:"WriteWithResponse"`
}

// RawSubscribeCmd subscribes to notifications on a raw endpoint.
type RawSubscribeCmd struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
}

// RawUnsubscribeCmd cancels a RawSubscribeCmd.
type RawUnsubscribeCmd struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
}

// RawReading carries raw bytes back to the client.
type RawReading struct {
	Id          uint32 `json:"Id"`
	DeviceIndex uint32 `json:"DeviceIndex"`
	Endpoint    string `json:"Endpoint"`
	Data        []byte `json:"Data"`
}

// Upgrader implements upgrade.Upgrader for V2, delegating anything it
// doesn't add to v1.
type Upgrader struct {
	v1.Upgrader
}

// Version implements upgrade.Upgrader.
func (Upgrader) Version() message.Version { return message.V2 }

var payloads = map[string]func() any{
	"BatteryLevelCmd":   func() any { return new(DeviceIndexed) },
	"RSSILevelCmd":      func() any { return new(DeviceIndexed) },
	"RawReadCmd":        func() any { return new(RawReadCmd) },
	"RawWriteCmd":       func() any { return new(RawWriteCmd) },
	"RawSubscribeCmd":   func() any { return new(RawSubscribeCmd) },
	"RawUnsubscribeCmd": func() any { return new(RawUnsubscribeCmd) },
}

// NewPayload implements upgrade.Upgrader.
func (u Upgrader) NewPayload(name string) (any, bool) {
	if f, ok := payloads[name]; ok {
		return f(), true
	}
	return u.Upgrader.NewPayload(name)
}

// Up implements upgrade.Upgrader.
func (u Upgrader) Up(name string, payload any, ctx message.DeviceContext) (message.Message, error) {
	switch name {
	case "BatteryLevelCmd":
		p := payload.(*DeviceIndexed)
		return finish(batteryFeatureIndex(ctx, p.DeviceIndex), message.InputBattery, p.DeviceIndex, p.Id, message.InputCommandRead), nil

	case "RSSILevelCmd":
		p := payload.(*DeviceIndexed)
		return finish(rssiFeatureIndex(ctx, p.DeviceIndex), message.InputRSSI, p.DeviceIndex, p.Id, message.InputCommandRead), nil

	case "RawReadCmd":
		p := payload.(*RawReadCmd)
		return withID(&message.RawReadCmd{
			DeviceIndex:    p.DeviceIndex,
			Endpoint:       message.Endpoint(p.Endpoint),
			ExpectedLength: p.ExpectedLength,
			TimeoutMs:      p.Timeout,
		}, p.Id), nil

	case "RawWriteCmd":
		p := payload.(*RawWriteCmd)
		return withID(&message.RawWriteCmd{
			DeviceIndex:       p.DeviceIndex,
			Endpoint:          message.Endpoint(p.Endpoint),
			Data:              p.Data,
			WriteWithResponse: p.WriteWithResponse,
		}, p.Id), nil

	case "RawSubscribeCmd":
		p := payload.(*RawSubscribeCmd)
		return withID(&message.RawSubscribeCmd{DeviceIndex: p.DeviceIndex, Endpoint: message.Endpoint(p.Endpoint)}, p.Id), nil

	case "RawUnsubscribeCmd":
		p := payload.(*RawUnsubscribeCmd)
		return withID(&message.RawUnsubscribeCmd{DeviceIndex: p.DeviceIndex, Endpoint: message.Endpoint(p.Endpoint)}, p.Id), nil

	default:
		return u.Upgrader.Up(name, payload, ctx)
	}
}

// Down implements upgrade.Upgrader.
func (u Upgrader) Down(m message.Message, ctx message.DeviceContext) (string, any, bool) {
	switch v := m.(type) {
	case *message.InputReading:
		switch v.InputType {
		case message.InputBattery:
			level := 0.0
			if len(v.Data) > 0 {
				level = float64(v.Data[0]) / 100.0
			}
			return "BatteryLevelReading", &BatteryLevelReading{Id: v.ID(), DeviceIndex: v.DeviceIndex, BatteryLevel: level}, true
		case message.InputRSSI:
			level := int32(0)
			if len(v.Data) > 0 {
				level = v.Data[0]
			}
			return "RSSILevelReading", &RSSILevelReading{Id: v.ID(), DeviceIndex: v.DeviceIndex, RSSILevel: level}, true
		}
		return "", nil, false

	case *message.RawReading:
		return "RawReading", &RawReading{Id: v.ID(), DeviceIndex: v.DeviceIndex, Endpoint: string(v.Endpoint), Data: v.Data}, true

	default:
		return u.Upgrader.Down(m, ctx)
	}
}

func batteryFeatureIndex(ctx message.DeviceContext, deviceIndex uint32) uint32 {
	return inputFeatureIndex(ctx, deviceIndex, message.InputBattery)
}

func rssiFeatureIndex(ctx message.DeviceContext, deviceIndex uint32) uint32 {
	return inputFeatureIndex(ctx, deviceIndex, message.InputRSSI)
}

func inputFeatureIndex(ctx message.DeviceContext, deviceIndex uint32, input message.InputType) uint32 {
	if ctx == nil {
		return 0
	}
	for _, f := range ctx.Features(deviceIndex) {
		if f.Input == input {
			return f.Index
		}
	}
	return 0
}

func finish(featureIndex uint32, input message.InputType, deviceIndex, id uint32, cmd message.InputCommandKind) message.Message {
	m := &message.InputCmd{DeviceIndex: deviceIndex, FeatureIndex: featureIndex, InputType: input, Command: cmd}
	m.SetID(id)
	return m
}

func withID(m message.Message, id uint32) message.Message {
	m.SetID(id)
	return m
}
