package session_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/message"
	_ "github.com/xmidt-org/devbridge/message/v0"
	_ "github.com/xmidt-org/devbridge/message/v1"
	_ "github.com/xmidt-org/devbridge/message/v2"
	_ "github.com/xmidt-org/devbridge/message/v3"
	"github.com/xmidt-org/devbridge/serializer"
	"github.com/xmidt-org/devbridge/session"
)

// fakeManager is the narrowest possible session.DeviceManager double.
type fakeManager struct {
	events    chan message.Message
	stopAllCt int
	dispatch  func(message.Message) (message.Message, error)
}

func newFakeManager() *fakeManager {
	return &fakeManager{events: make(chan message.Message, 8)}
}

func (f *fakeManager) FeaturesByActuator(uint32, message.ActuatorType) []message.FeatureRange { return nil }
func (f *fakeManager) Features(uint32) []message.FeatureRange                                 { return nil }
func (f *fakeManager) StartScanning(context.Context) error                                    { return nil }
func (f *fakeManager) StopScanning(context.Context) error                                     { return nil }
func (f *fakeManager) DeviceList(context.Context) []message.DeviceEntry                       { return nil }
func (f *fakeManager) Events() <-chan message.Message                                         { return f.events }
func (f *fakeManager) StopAll(context.Context) error {
	f.stopAllCt++
	return nil
}
func (f *fakeManager) Dispatch(ctx context.Context, cmd message.Message) (message.Message, error) {
	if f.dispatch != nil {
		return f.dispatch(cmd)
	}
	ok := &message.Ok{}
	ok.SetID(cmd.ID())
	return ok, nil
}

// byteTransport feeds a fixed script of inbound frames then blocks until
// Disconnect, recording every outbound frame it's asked to carry.
type byteTransport struct {
	script [][]byte
	sent   chan []byte
}

func (bt *byteTransport) Connect(ctx context.Context, outgoing <-chan []byte, incoming chan<- connector.Event) error {
	incoming <- connector.Event{Type: connector.Connected}
	for _, frame := range bt.script {
		incoming <- connector.Event{Type: connector.MessageReceived, Data: frame}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-outgoing:
			if !ok {
				return nil
			}
			bt.sent <- frame
		}
	}
}

func (bt *byteTransport) Disconnect() error { return nil }

func TestHandshakeNegotiatesVersionAndRepliesServerInfo(t *testing.T) {
	ser, err := serializer.New()
	require.NoError(t, err)

	transport := &byteTransport{
		sent:   make(chan []byte, 8),
		script: [][]byte{[]byte(`[{"RequestServerInfo":{"Id":1,"ClientName":"T","MessageVersion":3}}]`)},
	}
	conn := connector.New(transport, 8, nil)
	devices := newFakeManager()

	sess := session.New(session.Config{ServerName: "devbridge-test", MaxVersion: message.V4}, conn, ser, devices)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = conn.Run(ctx) }()
	go func() { _ = sess.Run(ctx) }()

	select {
	case raw := <-transport.sent:
		var out []map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &out))
		require.Len(t, out, 1)
		_, ok := out[0]["ServerInfo"]
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ServerInfo reply")
	}
}

func TestPingResetsWatchdogAndRepliesOk(t *testing.T) {
	ser, err := serializer.New()
	require.NoError(t, err)

	transport := &byteTransport{
		sent: make(chan []byte, 8),
		script: [][]byte{
			[]byte(`[{"RequestServerInfo":{"Id":1,"ClientName":"T","MessageVersion":3}}]`),
			[]byte(`[{"Ping":{"Id":2}}]`),
		},
	}
	conn := connector.New(transport, 8, nil)
	devices := newFakeManager()
	sess := session.New(session.Config{ServerName: "devbridge-test", MaxVersion: message.V4, MaxPingTime: time.Hour}, conn, ser, devices)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = conn.Run(ctx) }()
	go func() { _ = sess.Run(ctx) }()

	<-transport.sent // ServerInfo

	select {
	case raw := <-transport.sent:
		assert.Contains(t, string(raw), "Ok")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ok reply to Ping")
	}
}

func TestStopAllDevicesDispatchesToManager(t *testing.T) {
	ser, err := serializer.New()
	require.NoError(t, err)

	transport := &byteTransport{
		sent: make(chan []byte, 8),
		script: [][]byte{
			[]byte(`[{"RequestServerInfo":{"Id":1,"ClientName":"T","MessageVersion":3}}]`),
			[]byte(`[{"StopAllDevices":{"Id":2}}]`),
		},
	}
	conn := connector.New(transport, 8, nil)
	devices := newFakeManager()
	sess := session.New(session.Config{ServerName: "devbridge-test", MaxVersion: message.V4}, conn, ser, devices)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() { _ = conn.Run(ctx) }()
	go func() { _ = sess.Run(ctx) }()

	<-transport.sent // ServerInfo
	<-transport.sent // Ok for StopAllDevices

	assert.GreaterOrEqual(t, devices.stopAllCt, 1)
}
