package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDeviceAddedRequiresSystemID(t *testing.T) {
	da := &DeviceAdded{base: base{Id: 1}}
	assert.Error(t, Validate(da))

	da.SetID(SystemID)
	assert.NoError(t, Validate(da))
}

func TestValidateRequestServerInfoRejectsSystemID(t *testing.T) {
	rsi := &RequestServerInfo{base: base{Id: SystemID}, ClientName: "test"}
	assert.Error(t, Validate(rsi))
}

func TestValidateOutputCommandExactlyOneVariant(t *testing.T) {
	cmd := &OutputCmd{
		base:        base{Id: 1},
		DeviceIndex: 0,
		Commands: []OutputCommand{
			{FeatureIndex: 0},
		},
	}
	assert.Error(t, Validate(cmd))

	cmd.Commands[0].Value = &ScalarCommand{ActuatorType: ActuatorVibrate, Scalar: 50}
	assert.NoError(t, Validate(cmd))

	cmd.Commands[0].PositionWithDuration = &PositionWithDurationCommand{Position: 50, DurationMs: 100}
	assert.Error(t, Validate(cmd))
}

func TestValidateInputReadingRSSIMustBeNonPositive(t *testing.T) {
	r := &InputReading{base: base{Id: SystemID}, InputType: InputRSSI, Data: []int32{1}}
	assert.Error(t, Validate(r))

	r.Data = []int32{-40}
	assert.NoError(t, Validate(r))
}

func TestValidateInputReadingBatteryRange(t *testing.T) {
	r := &InputReading{base: base{Id: SystemID}, InputType: InputBattery, Data: []int32{150}}
	assert.Error(t, Validate(r))

	r.Data = []int32{80}
	assert.NoError(t, Validate(r))
}

func TestValidateRange(t *testing.T) {
	assert.NoError(t, ValidateRange(5, 0, 10))
	assert.Error(t, ValidateRange(11, 0, 10))
}
