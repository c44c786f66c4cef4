package message

// Version identifies which on-the-wire message vocabulary a client speaks.
// The server advertises MaxVersion and accepts anything <= it; the
// negotiated version locks the upgrader for the remainder of the session
// (spec §4.3).
type Version uint32

// Supported spec versions. V4 is canonical: the internal engine (message,
// device, protocol packages) only ever operates on V4 types. Every other
// version is translated to/from V4 at the connector boundary by
// message/upgrade.
const (
	V0 Version = 0
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4

	MaxVersion = V4
)

// DeviceContext is consulted by version upgraders when a translation needs
// device feature information the wire message itself doesn't carry (for
// example, SingleMotorVibrateCmd's single scalar fanning out to every
// vibrating feature). The device manager implements this.
type DeviceContext interface {
	// FeaturesByActuator returns every feature of the given actuator type on
	// the addressed device, in feature-index order.
	FeaturesByActuator(deviceIndex uint32, actuator ActuatorType) []FeatureRange

	// Features returns every feature on the addressed device, in
	// feature-index order.
	Features(deviceIndex uint32) []FeatureRange
}

// FeatureRange is the subset of DeviceFeature a version upgrader needs: its
// index, verb, and declared value range.
type FeatureRange struct {
	Index    uint32
	Actuator ActuatorType
	Input    InputType
	Min, Max uint32
}
