package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/device"
	"github.com/xmidt-org/devbridge/device/config"
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

func init() {
	protocol.Register("test-vibrator", func() protocol.Handler { return &testHandler{} })
}

// testHandler is a minimal protocol.Handler standing in for a concrete
// model, exercised only through Vibrate.
type testHandler struct {
	protocol.Unimplemented
}

func (*testHandler) Name() string { return "test-vibrator" }

func (*testHandler) Vibrate(_ context.Context, f protocol.Feature, speed uint32) ([]protocol.HardwareCommand, error) {
	return []protocol.HardwareCommand{{Kind: protocol.Write, Endpoint: message.EndpointTx, FeatureID: f.ID, Data: []byte{byte(speed)}}}, nil
}

// fakeEndpoint records every write it's asked to perform.
type fakeEndpoint struct {
	mu     sync.Mutex
	writes [][]byte
	closed bool
}

func (e *fakeEndpoint) WriteValue(_ context.Context, _ []uuid.UUID, _ message.Endpoint, data []byte, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writes = append(e.writes, data)
	return nil
}
func (e *fakeEndpoint) ReadValue(context.Context, message.Endpoint, int, time.Duration) ([]byte, error) {
	return nil, nil
}
func (e *fakeEndpoint) Subscribe(context.Context, message.Endpoint) (<-chan []byte, error) {
	return nil, nil
}
func (e *fakeEndpoint) Unsubscribe(context.Context, message.Endpoint) error { return nil }
func (e *fakeEndpoint) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEndpoint) writeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes)
}

// fakeComm is a scripted HardwareCommunicationManager: tests push CommEvents
// directly onto its channel.
type fakeComm struct {
	name   string
	events chan device.CommEvent
}

func newFakeComm(name string) *fakeComm {
	return &fakeComm{name: name, events: make(chan device.CommEvent, 8)}
}

func (c *fakeComm) Name() string                            { return c.name }
func (c *fakeComm) StartScanning(context.Context) error      { c.events <- device.CommEvent{Type: device.ScanningStarted}; return nil }
func (c *fakeComm) StopScanning(context.Context) error       { return nil }
func (c *fakeComm) IsScanning() bool                         { return false }
func (c *fakeComm) Events() <-chan device.CommEvent          { return c.events }

func testConfigTable() *config.Table {
	return config.New([]config.Entry{
		{
			Protocol:     "test-vibrator",
			DisplayName:  "Test Vibrator",
			NamePrefixes: []string{"TestVibe"},
			Features: []config.FeatureSpec{
				{Actuator: message.ActuatorVibrate, Min: 0, Max: 20, StepCount: 20, Description: "vibrator"},
			},
		},
	})
}

func TestOnDeviceFoundRegistersAndEmitsDeviceAdded(t *testing.T) {
	comm := newFakeComm("fake")
	mgr := device.New(device.Options{
		Config:    testConfigTable(),
		Managers:  []device.HardwareCommunicationManager{comm},
		KeepAlive: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	ep := &fakeEndpoint{}
	comm.events <- device.CommEvent{
		Type:       device.DeviceFound,
		Descriptor: config.Descriptor{Name: "TestVibe-1"},
		Endpoint:   ep,
	}

	select {
	case ev := <-mgr.Events():
		added, ok := ev.(*message.DeviceAdded)
		require.True(t, ok)
		assert.Equal(t, uint32(0), added.DeviceIndex)
		assert.Equal(t, "Test Vibrator", added.DeviceName)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for DeviceAdded")
	}

	list := mgr.DeviceList(ctx)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Features, 1)
}

func TestDispatchOutputCmdWritesToEndpoint(t *testing.T) {
	comm := newFakeComm("fake")
	mgr := device.New(device.Options{
		Config:   testConfigTable(),
		Managers: []device.HardwareCommunicationManager{comm},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	ep := &fakeEndpoint{}
	comm.events <- device.CommEvent{Type: device.DeviceFound, Descriptor: config.Descriptor{Name: "TestVibe-1"}, Endpoint: ep}
	<-mgr.Events()

	cmd := &message.OutputCmd{
		DeviceIndex: 0,
		Commands: []message.OutputCommand{
			{FeatureIndex: 0, Value: &message.ScalarCommand{ActuatorType: message.ActuatorVibrate, Scalar: 10}},
		},
	}
	cmd.SetID(7)

	reply, err := mgr.Dispatch(ctx, cmd)
	require.NoError(t, err)
	_, ok := reply.(*message.Ok)
	assert.True(t, ok)
	assert.Equal(t, 1, ep.writeCount())
}

func TestDispatchUnknownDeviceReturnsDeviceNotAvailable(t *testing.T) {
	mgr := device.New(device.Options{Config: testConfigTable()})

	cmd := &message.StopDeviceCmd{DeviceIndex: 99}
	cmd.SetID(1)

	_, err := mgr.Dispatch(context.Background(), cmd)
	require.Error(t, err)
}

func TestStopAllStopsEveryDevice(t *testing.T) {
	comm := newFakeComm("fake")
	mgr := device.New(device.Options{
		Config:   testConfigTable(),
		Managers: []device.HardwareCommunicationManager{comm},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Run(ctx)

	ep1, ep2 := &fakeEndpoint{}, &fakeEndpoint{}
	comm.events <- device.CommEvent{Type: device.DeviceFound, Descriptor: config.Descriptor{Name: "TestVibe-1"}, Endpoint: ep1}
	<-mgr.Events()
	comm.events <- device.CommEvent{Type: device.DeviceFound, Descriptor: config.Descriptor{Name: "TestVibe-2"}, Endpoint: ep2}
	<-mgr.Events()

	require.NoError(t, mgr.StopAll(context.Background()))
	assert.Equal(t, 1, ep1.writeCount())
	assert.Equal(t, 1, ep2.writeCount())
}
