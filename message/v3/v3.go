// Package v3 adds a single generic ScalarCmd alongside the VibrateCmd and
// LinearCmd it still accepts from v1, adds RotateCmd with direction, and
// introduces sensor read/subscribe/unsubscribe as first-class messages on
// top of v2's device-level BatteryLevelCmd/RSSILevelCmd.
package v3

import (
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
	"github.com/xmidt-org/devbridge/message/v2"
)

func init() {
	upgrade.Register(Upgrader{})
}

// ScalarCmd is the generic per-feature intensity command that replaced
// VibrateCmd/constrict/inflate-specific messages.
type ScalarCmd struct {
	Id          uint32          `json:"Id"`
	DeviceIndex uint32          `json:"DeviceIndex"`
	Scalars     []ScalarSubcmd `json:"Scalars"`
}

// ScalarSubcmd is one feature's scalar subcommand within a ScalarCmd.
type ScalarSubcmd struct {
	Index        uint32 `json:"Index"`
	Scalar       uint32 `json:"Scalar"`
	ActuatorType string `json:"ActuatorType"`
}

// RotateCmd (v3) adds a clockwise direction per feature, unlike v1's
// directionless speed-only RotateCmd.
type RotateCmd struct {
	Id          uint32         `json:"Id"`
	DeviceIndex uint32         `json:"DeviceIndex"`
	Rotations   []RotateSubcmd `json:"Rotations"`
}

// RotateSubcmd is one feature's rotate-with-direction subcommand.
type RotateSubcmd struct {
	Index     uint32 `json:"Index"`
	Speed     uint32 `json:"Speed"`
	Clockwise bool   `json:"Clockwise"`
}

// SensorReadCmd reads one sensor feature by index and type.
type SensorReadCmd struct {
	Id           uint32 `json:"Id"`
	DeviceIndex  uint32 `json:"DeviceIndex"`
	FeatureIndex uint32 `json:"SensorIndex"`
	SensorType   string `json:"SensorType"`
}

// SensorSubscribeCmd subscribes to a sensor feature's readings.
type SensorSubscribeCmd struct {
	Id           uint32 `json:"Id"`
	DeviceIndex  uint32 `json:"DeviceIndex"`
	FeatureIndex uint32 `json:"SensorIndex"`
	SensorType   string `json:"SensorType"`
}

// SensorUnsubscribeCmd cancels a SensorSubscribeCmd.
type SensorUnsubscribeCmd struct {
	Id           uint32 `json:"Id"`
	DeviceIndex  uint32 `json:"DeviceIndex"`
	FeatureIndex uint32 `json:"SensorIndex"`
	SensorType   string `json:"SensorType"`
}

// SensorReading is the reply to SensorReadCmd, or an event from an active
// subscription.
type SensorReading struct {
	Id           uint32  `json:"Id"`
	DeviceIndex  uint32  `json:"DeviceIndex"`
	FeatureIndex uint32  `json:"SensorIndex"`
	SensorType   string  `json:"SensorType"`
	Data         []int32 `json:"Data"`
}

// Upgrader implements upgrade.Upgrader for V3, delegating anything it
// doesn't add to v2.
type Upgrader struct {
	v2.Upgrader
}

// Version implements upgrade.Upgrader.
func (Upgrader) Version() message.Version { return message.V3 }

var payloads = map[string]func() any{
	"ScalarCmd":            func() any { return new(ScalarCmd) },
	"RotateCmd":            func() any { return new(RotateCmd) },
	"SensorReadCmd":        func() any { return new(SensorReadCmd) },
	"SensorSubscribeCmd":   func() any { return new(SensorSubscribeCmd) },
	"SensorUnsubscribeCmd": func() any { return new(SensorUnsubscribeCmd) },
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
	case "ScalarCmd":
		p := payload.(*ScalarCmd)
		cmds := make([]message.OutputCommand, 0, len(p.Scalars))
		for _, s := range p.Scalars {
			cmds = append(cmds, message.OutputCommand{
				FeatureIndex: s.Index,
				Value:        &message.ScalarCommand{ActuatorType: message.ActuatorType(s.ActuatorType), Scalar: s.Scalar},
			})
		}
		return finish(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	case "RotateCmd":
		p := payload.(*RotateCmd)
		cmds := make([]message.OutputCommand, 0, len(p.Rotations))
		for _, r := range p.Rotations {
			cmds = append(cmds, message.OutputCommand{
				FeatureIndex:        r.Index,
				RotateWithDirection: &message.RotateWithDirectionCommand{Speed: r.Speed, Clockwise: r.Clockwise},
			})
		}
		return finish(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	case "SensorReadCmd":
		p := payload.(*SensorReadCmd)
		return finish(&message.InputCmd{
			DeviceIndex:  p.DeviceIndex,
			FeatureIndex: p.FeatureIndex,
			InputType:    message.InputType(p.SensorType),
			Command:      message.InputCommandRead,
		}, p.Id), nil

	case "SensorSubscribeCmd":
		p := payload.(*SensorSubscribeCmd)
		return finish(&message.InputCmd{
			DeviceIndex:  p.DeviceIndex,
			FeatureIndex: p.FeatureIndex,
			InputType:    message.InputType(p.SensorType),
			Command:      message.InputCommandSubscribe,
		}, p.Id), nil

	case "SensorUnsubscribeCmd":
		p := payload.(*SensorUnsubscribeCmd)
		return finish(&message.InputCmd{
			DeviceIndex:  p.DeviceIndex,
			FeatureIndex: p.FeatureIndex,
			InputType:    message.InputType(p.SensorType),
			Command:      message.InputCommandUnsubscribe,
		}, p.Id), nil

	default:
		return u.Upgrader.Up(name, payload, ctx)
	}
}

// Down implements upgrade.Upgrader.
func (u Upgrader) Down(m message.Message, ctx message.DeviceContext) (string, any, bool) {
	switch v := m.(type) {
	case *message.InputReading:
		return "SensorReading", &SensorReading{
			Id:           v.ID(),
			DeviceIndex:  v.DeviceIndex,
			FeatureIndex: v.FeatureIndex,
			SensorType:   string(v.InputType),
			Data:         v.Data,
		}, true

	default:
		return u.Upgrader.Down(m, ctx)
	}
}

func finish(m message.Message, id uint32) message.Message {
	m.SetID(id)
	return m
}
