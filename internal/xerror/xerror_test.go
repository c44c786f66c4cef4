package xerror_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xmidt-org/devbridge/internal/xerror"
	"github.com/xmidt-org/devbridge/message"
)

func TestWrapPreservesKindAndCause(t *testing.T) {
	cause := errors.New("timed out waiting for battery read")
	err := xerror.Wrap(xerror.KindDeviceTimeout, cause, "deviceIndex", 3)

	assert.Equal(t, xerror.KindDeviceTimeout, xerror.KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, xerror.KindUnknown, xerror.KindOf(errors.New("boom")))
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, message.ErrorInit, xerror.ErrorCode(xerror.KindHandshake))
	assert.Equal(t, message.ErrorPing, xerror.ErrorCode(xerror.KindPing))
	assert.Equal(t, message.ErrorMsg, xerror.ErrorCode(xerror.KindMsg))
	assert.Equal(t, message.ErrorDevice, xerror.ErrorCode(xerror.KindDeviceTimeout))
	assert.Equal(t, message.ErrorUnknown, xerror.ErrorCode(xerror.KindUnknown))
}

func TestToWireErrorPreservesRequestID(t *testing.T) {
	err := xerror.Wrap(xerror.KindMsg, errors.New("unknown message"))
	wire := xerror.ToWireError(42, err)
	assert.Equal(t, uint32(42), wire.ID())
	assert.Equal(t, message.ErrorMsg, wire.ErrorCode)
}
