package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

type recordingEndpoint struct {
	mu         sync.Mutex
	writes     [][]byte
	disconnects int
}

func (e *recordingEndpoint) WriteValue(_ context.Context, _ []uuid.UUID, _ message.Endpoint, data []byte, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes = append(e.writes, data)
	return nil
}
func (e *recordingEndpoint) ReadValue(context.Context, message.Endpoint, int, time.Duration) ([]byte, error) {
	return []byte{42}, nil
}
func (e *recordingEndpoint) Subscribe(context.Context, message.Endpoint) (<-chan []byte, error) {
	return make(chan []byte), nil
}
func (e *recordingEndpoint) Unsubscribe(context.Context, message.Endpoint) error { return nil }
func (e *recordingEndpoint) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disconnects++
	return nil
}

func (e *recordingEndpoint) writeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes)
}

type passThroughHandler struct {
	protocol.Unimplemented
}

func (*passThroughHandler) Name() string { return "pass-through" }

func (*passThroughHandler) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return []protocol.HardwareCommand{{Kind: protocol.Write, Endpoint: message.EndpointTx, FeatureID: f.ID, Data: []byte{byte(speed)}}}, nil
}

func TestDeviceDispatchWritesThroughEndpoint(t *testing.T) {
	ep := &recordingEndpoint{}
	d := newDevice(0, registeredEntry{Protocol: "pass-through", Name: "Test"}, ep, &passThroughHandler{}, time.Second, log.NewNopLogger(), nil, nil)
	defer d.Stop()

	cmds := []protocol.HardwareCommand{{Kind: protocol.Write, Endpoint: message.EndpointTx, Data: []byte{5}}}
	_, err := d.Dispatch(context.Background(), cmds)
	require.NoError(t, err)
	assert.Equal(t, 1, ep.writeCount())
}

func TestDeviceDispatchReturnsReadingOnReadCommand(t *testing.T) {
	ep := &recordingEndpoint{}
	d := newDevice(0, registeredEntry{Protocol: "pass-through", Name: "Test"}, ep, &passThroughHandler{}, time.Second, log.NewNopLogger(), nil, nil)
	defer d.Stop()

	cmds := []protocol.HardwareCommand{{Kind: protocol.Read, Endpoint: message.EndpointRx, ExpectedLength: 1}}
	reading, err := d.Dispatch(context.Background(), cmds)
	require.NoError(t, err)
	require.NotNil(t, reading)
	assert.Equal(t, []int32{42}, reading.Data)
}

func TestDeviceStopIsIdempotentAndDisconnects(t *testing.T) {
	ep := &recordingEndpoint{}
	d := newDevice(0, registeredEntry{Protocol: "pass-through", Name: "Test"}, ep, &passThroughHandler{}, time.Second, log.NewNopLogger(), nil, nil)

	d.Stop()
	d.Stop()

	assert.Equal(t, 1, ep.disconnects)
}

func TestDeviceDispatchAfterStopReturnsError(t *testing.T) {
	ep := &recordingEndpoint{}
	d := newDevice(0, registeredEntry{Protocol: "pass-through", Name: "Test"}, ep, &passThroughHandler{}, time.Second, log.NewNopLogger(), nil, nil)
	d.Stop()

	_, err := d.Dispatch(context.Background(), []protocol.HardwareCommand{{Kind: protocol.Write}})
	assert.ErrorIs(t, err, errDeviceStopped)
}
