package message

import "fmt"

// ValidationError is returned by Validate. It is always convertible to an
// ERROR_MSG wire reply by the session layer.
type ValidationError struct {
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate enforces the Id discipline and field-level rules from spec §4.1.
// It is pure: no I/O, no hardware state, total over every Message kind
// this package defines.
func Validate(m Message) error {
	switch v := m.(type) {
	case *DeviceAdded:
		if v.ID() != SystemID {
			return invalid("DeviceAdded must have Id = 0, got %d", v.ID())
		}
	case *DeviceRemoved:
		if v.ID() != SystemID {
			return invalid("DeviceRemoved must have Id = 0, got %d", v.ID())
		}
	case *ScanningFinished:
		if v.ID() != SystemID {
			return invalid("ScanningFinished must have Id = 0, got %d", v.ID())
		}
	case *InputReading:
		// Subscription-originated readings use SystemID; read-originated
		// readings echo the request's Id. Both are legal here, so only the
		// sensor value itself is validated.
		if v.InputType == InputRSSI {
			for _, d := range v.Data {
				if d > 0 {
					return invalid("RSSI reading must be <= 0, got %d", d)
				}
			}
		}
		if v.InputType == InputBattery {
			for _, d := range v.Data {
				if d < 0 || d > 100 {
					return invalid("battery reading must be in [0,100], got %d", d)
				}
			}
		}
	case *RequestServerInfo:
		if v.ID() == SystemID {
			return invalid("RequestServerInfo must not have Id = 0")
		}
		if v.ClientName == "" {
			return invalid("RequestServerInfo.ClientName is required")
		}
	case *OutputCmd:
		if v.ID() == SystemID {
			return invalid("OutputCmd must not have Id = 0")
		}
		for _, c := range v.Commands {
			if err := validateOutputCommand(c); err != nil {
				return err
			}
		}
	case *InputCmd:
		if v.ID() == SystemID {
			return invalid("InputCmd must not have Id = 0")
		}
		switch v.Command {
		case InputCommandRead, InputCommandSubscribe, InputCommandUnsubscribe:
		default:
			return invalid("unknown InputCommand %q", v.Command)
		}
	default:
		if m.ID() == SystemID && !isServerOnly(m.Kind()) {
			return invalid("%s must not have Id = 0", m.Kind())
		}
	}
	return nil
}

func validateOutputCommand(c OutputCommand) error {
	set := 0
	if c.Value != nil {
		set++
		switch c.Value.ActuatorType {
		case ActuatorVibrate, ActuatorRotate, ActuatorOscillate, ActuatorConstrict, ActuatorInflate, ActuatorPosition:
		default:
			return invalid("unknown ActuatorType %q", c.Value.ActuatorType)
		}
	}
	if c.PositionWithDuration != nil {
		set++
	}
	if c.RotateWithDirection != nil {
		set++
	}
	if set != 1 {
		return invalid("OutputCommand for feature %d must set exactly one of Value/PositionWithDuration/RotateWithDirection", c.FeatureIndex)
	}
	return nil
}

// ValidateRange checks a scalar command's value against the feature's
// declared [lo,hi] range (spec §8 invariant 3). This is separate from
// Validate because the range is device-specific and only known once the
// device manager has resolved the target feature.
func ValidateRange(value, lo, hi uint32) error {
	if value < lo || value > hi {
		return invalid("value %d out of range [%d,%d]", value, lo, hi)
	}
	return nil
}

// isServerOnly reports whether a Kind is only ever sent as a system event
// (and thus legitimately carries Id = 0) versus one the client might also
// address by request Id (Ok/Error echo the triggering request's Id and so
// are excluded here).
func isServerOnly(k Kind) bool {
	switch k {
	case KindDeviceAdded, KindDeviceRemoved, KindScanningFinished:
		return true
	default:
		return false
	}
}
