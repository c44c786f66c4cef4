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

// Package message defines the canonical (latest, V4) request, reply and
// event vocabulary the rest of devbridge operates on. Older on-the-wire
// versions live under message/v0 .. message/v3 and are converted to this
// vocabulary by message/upgrade before anything else in the pipeline sees
// them.
package message

import "fmt"

// SystemID is the reserved Id for unsolicited server events. Client-initiated
// messages must never use it.
const SystemID uint32 = 0

// ActuatorType is the semantic verb of an output feature.
type ActuatorType string

// Recognized actuator types.
const (
	ActuatorVibrate   ActuatorType = "Vibrate"
	ActuatorRotate    ActuatorType = "Rotate"
	ActuatorOscillate ActuatorType = "Oscillate"
	ActuatorConstrict ActuatorType = "Constrict"
	ActuatorInflate   ActuatorType = "Inflate"
	ActuatorPosition  ActuatorType = "Position"
)

// InputType is the semantic noun of a sensor feature.
type InputType string

// Recognized input types.
const (
	InputBattery  InputType = "Battery"
	InputRSSI     InputType = "RSSI"
	InputButton   InputType = "Button"
	InputPressure InputType = "Pressure"
)

// Endpoint addresses a logical channel on a device, analogous to a BLE
// characteristic.
type Endpoint string

// Recognized endpoints. Generic0..Generic31 are handled via GenericEndpoint.
const (
	EndpointTx             Endpoint = "tx"
	EndpointRx             Endpoint = "rx"
	EndpointCommand        Endpoint = "command"
	EndpointFirmware       Endpoint = "firmware"
	EndpointTxMode         Endpoint = "txmode"
	EndpointTxVibrate      Endpoint = "txvibrate"
	EndpointTxShock        Endpoint = "txshock"
	EndpointTxVendorControl Endpoint = "txvendorcontrol"
	EndpointWhitelist      Endpoint = "whitelist"
)

// GenericEndpoint returns generic<n>, n in [0,31].
func GenericEndpoint(n int) Endpoint {
	return Endpoint(fmt.Sprintf("generic%d", n))
}

// Kind identifies a message's concrete type for dispatch without a type
// switch at every call site.
type Kind string

// Canonical V4 message kinds. Not exhaustive of every internal payload type,
// but every message the wire protocol can carry has an entry here.
const (
	KindRequestServerInfo Kind = "RequestServerInfo"
	KindServerInfo        Kind = "ServerInfo"
	KindPing              Kind = "Ping"
	KindOk                Kind = "Ok"
	KindError             Kind = "Error"
	KindStartScanning     Kind = "StartScanning"
	KindStopScanning      Kind = "StopScanning"
	KindScanningFinished  Kind = "ScanningFinished"
	KindRequestDeviceList Kind = "RequestDeviceList"
	KindDeviceList        Kind = "DeviceList"
	KindDeviceAdded       Kind = "DeviceAdded"
	KindDeviceRemoved     Kind = "DeviceRemoved"
	KindStopDeviceCmd     Kind = "StopDeviceCmd"
	KindStopAllDevices    Kind = "StopAllDevices"
	KindOutputCmd         Kind = "OutputCmd"
	KindInputCmd          Kind = "InputCmd"
	KindInputReading      Kind = "InputReading"
	KindRawReadCmd        Kind = "RawReadCmd"
	KindRawWriteCmd       Kind = "RawWriteCmd"
	KindRawSubscribeCmd   Kind = "RawSubscribeCmd"
	KindRawUnsubscribeCmd Kind = "RawUnsubscribeCmd"
	KindRawReading        Kind = "RawReading"
)

// Message is implemented by every canonical payload type. Id returns the
// message's wire Id; SetID lets the serializer and upgrader stamp it.
type Message interface {
	Kind() Kind
	ID() uint32
	SetID(uint32)
}

// base carries the Id field shared by every message and provides the
// ID/SetID half of the Message interface so concrete payloads only need to
// implement Kind().
type base struct {
	Id uint32 `json:"Id"`
}

// ID returns the message's wire Id.
func (b base) ID() uint32 { return b.Id }

// SetID stamps the message's wire Id.
func (b *base) SetID(id uint32) { b.Id = id }

// RequestServerInfo is the handshake message a client sends first.
type RequestServerInfo struct {
	base
	ClientName     string `json:"ClientName"`
	MessageVersion uint32 `json:"MessageVersion"`
}

// Kind implements Message.
func (RequestServerInfo) Kind() Kind { return KindRequestServerInfo }

// ServerInfo is the handshake reply.
type ServerInfo struct {
	base
	ServerName     string `json:"ServerName"`
	MessageVersion uint32 `json:"MessageVersion"`
	MaxPingTime    uint32 `json:"MaxPingTime"`
}

// Kind implements Message.
func (ServerInfo) Kind() Kind { return KindServerInfo }

// Ping resets the server's ping watchdog for the session.
type Ping struct{ base }

// Kind implements Message.
func (Ping) Kind() Kind { return KindPing }

// Ok is the generic success reply.
type Ok struct{ base }

// Kind implements Message.
func (Ok) Kind() Kind { return KindOk }

// ErrorCode enumerates the wire error codes from spec §6.
type ErrorCode int

// Wire error codes.
const (
	ErrorUnknown ErrorCode = 0
	ErrorInit    ErrorCode = 1
	ErrorPing    ErrorCode = 2
	ErrorMsg     ErrorCode = 3
	ErrorDevice  ErrorCode = 4
)

// Error is the generic error reply. It always preserves the Id of the
// message it is responding to (or 0 if the incoming message could not be
// parsed at all).
type Error struct {
	base
	ErrorMessage string    `json:"ErrorMessage"`
	ErrorCode    ErrorCode `json:"ErrorCode"`
}

// Kind implements Message.
func (Error) Kind() Kind { return KindError }

// StartScanning requests that every hardware communication manager begin
// scanning for devices.
type StartScanning struct{ base }

// Kind implements Message.
func (StartScanning) Kind() Kind { return KindStartScanning }

// StopScanning requests that scanning be cancelled cooperatively.
type StopScanning struct{ base }

// Kind implements Message.
func (StopScanning) Kind() Kind { return KindStopScanning }

// ScanningFinished is a system event emitted once every scanning manager
// that was active has reported completion.
type ScanningFinished struct{ base }

// Kind implements Message.
func (ScanningFinished) Kind() Kind { return KindScanningFinished }

// RequestDeviceList asks for a DeviceList reply describing every connected
// device.
type RequestDeviceList struct{ base }

// Kind implements Message.
func (RequestDeviceList) Kind() Kind { return KindRequestDeviceList }

// DeviceList is the reply to RequestDeviceList.
type DeviceList struct {
	base
	Devices []DeviceEntry `json:"Devices"`
}

// Kind implements Message.
func (DeviceList) Kind() Kind { return KindDeviceList }

// DeviceEntry is the per-version attribute projection of one connected
// device, as carried inside DeviceList/DeviceAdded.
type DeviceEntry struct {
	DeviceIndex       uint32           `json:"DeviceIndex"`
	DeviceName        string           `json:"DeviceName"`
	DeviceDisplayName string           `json:"DeviceDisplayName,omitempty"`
	DeviceMessages    map[string]any   `json:"DeviceMessages,omitempty"`
	DeviceMessageTimingGap uint32      `json:"DeviceMessageTimingGap,omitempty"`
	Features          []FeatureWire    `json:"DeviceFeatures,omitempty"`
}

// FeatureWire is the V4 first-class feature projection of a DeviceFeature.
type FeatureWire struct {
	FeatureIndex uint32 `json:"FeatureIndex"`
	FeatureID    string `json:"FeatureId"`
	Description  string `json:"Description,omitempty"`
	ActuatorType string `json:"ActuatorType,omitempty"`
	InputType    string `json:"InputType,omitempty"`
	StepCount    uint32 `json:"StepCount,omitempty"`
	Min          int64  `json:"Min"`
	Max          int64  `json:"Max"`
}

// DeviceAdded is a system event, Id always SystemID, fired when the device
// manager finishes probing and registering a newly discovered device.
type DeviceAdded struct {
	base
	DeviceEntry
}

// Kind implements Message.
func (DeviceAdded) Kind() Kind { return KindDeviceAdded }

// DeviceRemoved is a system event fired when a device disconnects or is
// manually removed.
type DeviceRemoved struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Kind implements Message.
func (DeviceRemoved) Kind() Kind { return KindDeviceRemoved }

// StopDeviceCmd stops every output feature on one device.
type StopDeviceCmd struct {
	base
	DeviceIndex uint32 `json:"DeviceIndex"`
}

// Kind implements Message.
func (StopDeviceCmd) Kind() Kind { return KindStopDeviceCmd }

// StopAllDevices stops every output feature on every live device.
type StopAllDevices struct{ base }

// Kind implements Message.
func (StopAllDevices) Kind() Kind { return KindStopAllDevices }

// OutputCommand is one feature-addressed instruction within an OutputCmd.
// Exactly one of Value, PositionWithDuration or RotateWithDirection is set;
// the dispatcher chooses the handler method to call based on which.
type OutputCommand struct {
	FeatureIndex uint32 `json:"FeatureIndex"`

	Value *ScalarCommand `json:"Value,omitempty"`

	PositionWithDuration *PositionWithDurationCommand `json:"PositionWithDuration,omitempty"`

	RotateWithDirection *RotateWithDirectionCommand `json:"RotateWithDirection,omitempty"`
}

// ScalarCommand sets a feature's actuator to a scalar intensity.
type ScalarCommand struct {
	ActuatorType ActuatorType `json:"ActuatorType"`
	Scalar       uint32       `json:"Scalar"`
}

// PositionWithDurationCommand drives a feature to an absolute position over
// a duration.
type PositionWithDurationCommand struct {
	Position   uint32 `json:"Position"`
	DurationMs uint32 `json:"DurationMs"`
}

// RotateWithDirectionCommand spins a feature at a speed in a direction.
type RotateWithDirectionCommand struct {
	Speed     uint32 `json:"Speed"`
	Clockwise bool   `json:"Clockwise"`
}

// OutputCmd addresses zero or more OutputCommands at one device. Missing
// feature indexes leave that feature's state untouched.
type OutputCmd struct {
	base
	DeviceIndex uint32          `json:"DeviceIndex"`
	Commands    []OutputCommand `json:"OutputCommands"`
}

// Kind implements Message.
func (OutputCmd) Kind() Kind { return KindOutputCmd }

// InputCommandKind distinguishes the three InputCmd operations.
type InputCommandKind string

// InputCmd operations.
const (
	InputCommandRead        InputCommandKind = "Read"
	InputCommandSubscribe   InputCommandKind = "Subscribe"
	InputCommandUnsubscribe InputCommandKind = "Unsubscribe"
)

// InputCmd reads, subscribes to, or unsubscribes from one sensor feature.
type InputCmd struct {
	base
	DeviceIndex  uint32           `json:"DeviceIndex"`
	FeatureIndex uint32           `json:"FeatureIndex"`
	InputType    InputType        `json:"InputType"`
	Command      InputCommandKind `json:"InputCommand"`
}

// Kind implements Message.
func (InputCmd) Kind() Kind { return KindInputCmd }

// InputReading carries a sensor value, either as the reply to an
// InputCommandRead or as a system event from an active subscription.
type InputReading struct {
	base
	DeviceIndex  uint32    `json:"DeviceIndex"`
	FeatureIndex uint32    `json:"FeatureIndex"`
	InputType    InputType `json:"InputType"`
	Data         []int32   `json:"Data"`
}

// Kind implements Message.
func (InputReading) Kind() Kind { return KindInputReading }

// RawReadCmd reads raw bytes from an endpoint. Gated by the server's
// allow-raw-messages configuration.
type RawReadCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
	ExpectedLength uint32 `json:"ExpectedLength"`
	TimeoutMs   uint32   `json:"Timeout"`
}

// Kind implements Message.
func (RawReadCmd) Kind() Kind { return KindRawReadCmd }

// RawWriteCmd writes raw bytes to an endpoint.
type RawWriteCmd struct {
	base
	DeviceIndex       uint32   `json:"DeviceIndex"`
	Endpoint          Endpoint `json:"Endpoint"`
	Data              []byte   `json:"Data"`
	WriteWithResponse bool     `json:"WriteWithResponse"`
}

// Kind implements Message.
func (RawWriteCmd) Kind() Kind { return KindRawWriteCmd }

// RawSubscribeCmd subscribes to notifications on a raw endpoint.
type RawSubscribeCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
}

// Kind implements Message.
func (RawSubscribeCmd) Kind() Kind { return KindRawSubscribeCmd }

// RawUnsubscribeCmd cancels a RawSubscribeCmd.
type RawUnsubscribeCmd struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
}

// Kind implements Message.
func (RawUnsubscribeCmd) Kind() Kind { return KindRawUnsubscribeCmd }

// RawReading carries raw bytes received from a subscribed or read endpoint.
type RawReading struct {
	base
	DeviceIndex uint32   `json:"DeviceIndex"`
	Endpoint    Endpoint `json:"Endpoint"`
	Data        []byte   `json:"Data"`
}

// Kind implements Message.
func (RawReading) Kind() Kind { return KindRawReading }
