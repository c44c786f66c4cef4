package connector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/connector"
)

// loopbackTransport echoes every outbound frame back as a MessageReceived
// event, and reports Connected immediately. Disconnect cancels the
// goroutine started by Connect.
type loopbackTransport struct {
	cancel context.CancelFunc
}

func (lt *loopbackTransport) Connect(ctx context.Context, outgoing <-chan []byte, incoming chan<- connector.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	lt.cancel = cancel

	incoming <- connector.Event{Type: connector.Connected}
	for {
		select {
		case <-ctx.Done():
			incoming <- connector.Event{Type: connector.Closed}
			return ctx.Err()
		case frame, ok := <-outgoing:
			if !ok {
				incoming <- connector.Event{Type: connector.Closed}
				return nil
			}
			incoming <- connector.Event{Type: connector.MessageReceived, Data: frame}
		}
	}
}

func (lt *loopbackTransport) Disconnect() error {
	if lt.cancel != nil {
		lt.cancel()
	}
	return nil
}

func TestConnectorEchoesSentFrames(t *testing.T) {
	transport := &loopbackTransport{}
	c := connector.New(transport, 4, nil)

	go func() {
		_ = c.Run(context.Background())
	}()

	require.NoError(t, c.Send([]byte("hello")))

	select {
	case ev := <-c.Events():
		assert.Equal(t, connector.Connected, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Connected event")
	}

	select {
	case ev := <-c.Events():
		assert.Equal(t, connector.MessageReceived, ev.Type)
		assert.Equal(t, []byte("hello"), ev.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}

	require.NoError(t, c.Close())
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for connector to close")
	}
}

func TestConnectorSendReturnsErrQueueFullWhenBoundReached(t *testing.T) {
	transport := &blockingTransport{}
	c := connector.New(transport, 1, nil)

	go func() {
		_ = c.Run(context.Background())
	}()

	require.NoError(t, c.Send([]byte("one")))
	err := c.Send([]byte("two"))
	assert.ErrorIs(t, err, connector.ErrQueueFull{})

	_ = c.Close()
}

// blockingTransport never drains outgoing, so the bounded queue fills.
type blockingTransport struct{}

func (blockingTransport) Connect(ctx context.Context, outgoing <-chan []byte, incoming chan<- connector.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingTransport) Disconnect() error { return nil }
