// Package v1 adds per-feature VibrateCmd/RotateCmd/LinearCmd subcommand
// lists on top of v0's single-scalar SingleMotorVibrateCmd, which remains
// supported for backward compatibility.
package v1

import (
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/message/upgrade"
	"github.com/xmidt-org/devbridge/message/v0"
)

func init() {
	upgrade.Register(Upgrader{})
}

// Speeds is shared by VibrateCmd and RotateCmd: one command per feature
// index, missing indexes leave that feature untouched (spec §4.1).
type Speeds struct {
	Id          uint32           `json:"Id"`
	DeviceIndex uint32           `json:"DeviceIndex"`
	Speeds      []IndexedIntensity `json:"Speeds"`
}

// IndexedIntensity addresses one feature by index with a normalized [0,1]
// intensity, the v1 convention every later version replaced with an
// integer Scalar.
type IndexedIntensity struct {
	Index   uint32  `json:"Index"`
	Speed   float64 `json:"Speed"`
}

// LinearCmd drives one or more features to a position over a duration.
type LinearCmd struct {
	Id          uint32           `json:"Id"`
	DeviceIndex uint32           `json:"DeviceIndex"`
	Vectors     []LinearVector `json:"Vectors"`
}

// LinearVector is one feature's position-with-duration subcommand.
type LinearVector struct {
	Index    uint32  `json:"Index"`
	Duration uint32  `json:"Duration"`
	Position float64 `json:"Position"`
}

// RequestServerInfo is the V1 handshake request: unlike v0, it negotiates a
// MessageVersion.
type RequestServerInfo struct {
	Id             uint32 `json:"Id"`
	ClientName     string `json:"ClientName"`
	MessageVersion uint32 `json:"MessageVersion"`
}

// Upgrader implements upgrade.Upgrader for V1. It embeds v0's upgrader so
// every message v1 inherits unchanged (handshake, scanning, stop) is
// translated identically without duplication.
type Upgrader struct {
	v0.Upgrader
}

// Version implements upgrade.Upgrader.
func (Upgrader) Version() message.Version { return message.V1 }

var payloads = map[string]func() any{
	"RequestServerInfo": func() any { return new(RequestServerInfo) },
	"VibrateCmd":        func() any { return new(Speeds) },
	"RotateCmd":         func() any { return new(Speeds) },
	"LinearCmd":         func() any { return new(LinearCmd) },
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
	case "RequestServerInfo":
		p := payload.(*RequestServerInfo)
		return finish(&message.RequestServerInfo{
			ClientName:     p.ClientName,
			MessageVersion: p.MessageVersion,
		}, p.Id), nil

	case "VibrateCmd":
		p := payload.(*Speeds)
		cmds := make([]message.OutputCommand, 0, len(p.Speeds))
		for _, s := range p.Speeds {
			scalar := scalarFor(ctx, p.DeviceIndex, message.ActuatorVibrate, s.Index, s.Speed)
			cmds = append(cmds, message.OutputCommand{
				FeatureIndex: s.Index,
				Value:        &message.ScalarCommand{ActuatorType: message.ActuatorVibrate, Scalar: scalar},
			})
		}
		return finish(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	case "RotateCmd":
		p := payload.(*Speeds)
		cmds := make([]message.OutputCommand, 0, len(p.Speeds))
		for _, s := range p.Speeds {
			scalar := scalarFor(ctx, p.DeviceIndex, message.ActuatorRotate, s.Index, s.Speed)
			cmds = append(cmds, message.OutputCommand{
				FeatureIndex: s.Index,
				Value:        &message.ScalarCommand{ActuatorType: message.ActuatorRotate, Scalar: scalar},
			})
		}
		return finish(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	case "LinearCmd":
		p := payload.(*LinearCmd)
		cmds := make([]message.OutputCommand, 0, len(p.Vectors))
		for _, v := range p.Vectors {
			cmds = append(cmds, message.OutputCommand{
				FeatureIndex: v.Index,
				PositionWithDuration: &message.PositionWithDurationCommand{
					Position:   uint32(v.Position*100 + 0.5),
					DurationMs: v.Duration,
				},
			})
		}
		return finish(&message.OutputCmd{DeviceIndex: p.DeviceIndex, Commands: cmds}, p.Id), nil

	default:
		return u.Upgrader.Up(name, payload, ctx)
	}
}

// Down implements upgrade.Upgrader. V1 has no server event not already
// covered by v0, so every down-conversion delegates.
func (u Upgrader) Down(m message.Message, ctx message.DeviceContext) (string, any, bool) {
	return u.Upgrader.Down(m, ctx)
}

func scalarFor(ctx message.DeviceContext, deviceIndex uint32, actuator message.ActuatorType, featureIndex uint32, normalized float64) uint32 {
	if ctx == nil {
		return uint32(normalized + 0.5)
	}
	for _, f := range ctx.FeaturesByActuator(deviceIndex, actuator) {
		if f.Index == featureIndex {
			return f.Min + uint32(normalized*float64(f.Max-f.Min)+0.5)
		}
	}
	return uint32(normalized + 0.5)
}

func finish(m message.Message, id uint32) message.Message {
	m.SetID(id)
	return m
}
