// Package xerror implements the error taxonomy from spec §7: a small set
// of Kinds, each carrying enough structured context (via
// github.com/goph/emperror) to become a wire Error message without losing
// the detail an operator would want in a log line.
package xerror

import (
	"errors"

	"github.com/goph/emperror"

	"github.com/xmidt-org/devbridge/message"
)

// Kind classifies an error for both wire ErrorCode mapping and logging.
type Kind string

// Kinds from spec §7's taxonomy table.
const (
	KindHandshake           Kind = "HANDSHAKE"
	KindPing                Kind = "PING"
	KindMsg                 Kind = "MSG"
	KindDeviceNotAvailable  Kind = "DEVICE_NOT_AVAILABLE"
	KindDeviceTimeout       Kind = "DEVICE_TIMEOUT"
	KindDeviceCommunication Kind = "DEVICE_COMMUNICATION"
	KindDeviceEncoding      Kind = "DEVICE_ENCODING"
	KindDeviceUnsupported   Kind = "DEVICE_UNSUPPORTED"
	KindUnknown             Kind = "UNKNOWN"
)

// kindError pairs a Kind with the underlying cause. Wrap attaches it via
// emperror so callers up the stack can still errors.As to the original
// cause while the session only needs the Kind to pick a wire ErrorCode.
type kindError struct {
	kind  Kind
	cause error
}

// Error implements error.
func (e *kindError) Error() string { return e.cause.Error() }

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *kindError) Unwrap() error { return e.cause }

// Wrap annotates err with kind and any extra key/value context, using
// emperror's structured annotation so logs can carry device/feature index
// alongside the message.
func Wrap(kind Kind, err error, keyvals ...any) error {
	if err == nil {
		return nil
	}
	annotated := emperror.With(err, keyvals...)
	return &kindError{kind: kind, cause: annotated}
}

// KindOf extracts the Kind from an error produced by Wrap, defaulting to
// KindUnknown for anything else (spec §7 "Unclassified").
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindUnknown
}

// ErrorCode maps a Kind to its spec §6 wire code.
func ErrorCode(kind Kind) message.ErrorCode {
	switch kind {
	case KindHandshake:
		return message.ErrorInit
	case KindPing:
		return message.ErrorPing
	case KindMsg:
		return message.ErrorMsg
	case KindDeviceNotAvailable, KindDeviceTimeout, KindDeviceCommunication, KindDeviceEncoding, KindDeviceUnsupported:
		return message.ErrorDevice
	default:
		return message.ErrorUnknown
	}
}

// ToWireError converts a Kind-wrapped error into the Error reply message
// for the given request Id (spec §7 "Propagation policy": errors never
// unwind past the session boundary).
func ToWireError(id uint32, err error) *message.Error {
	kind := KindOf(err)
	wireErr := &message.Error{
		ErrorMessage: err.Error(),
		ErrorCode:    ErrorCode(kind),
	}
	wireErr.SetID(id)
	return wireErr
}
