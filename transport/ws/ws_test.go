package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/transport/ws"
)

func TestTransportRoundTrip(t *testing.T) {
	var got *ws.Transport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := ws.Upgrade(w, r, nil)
		require.NoError(t, err)
		got = tr
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	// give the server handler a moment to finish upgrading and stash got.
	require.Eventually(t, func() bool { return got != nil }, time.Second, 10*time.Millisecond)

	outgoing := make(chan []byte, 1)
	incoming := make(chan connector.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = got.Connect(ctx, outgoing, incoming) }()

	ev := <-incoming
	assert.Equal(t, connector.Connected, ev.Type)

	require.NoError(t, client.WriteMessage(gorillaws.TextMessage, []byte(`[{"Ping":{"Id":1}}]`)))

	ev = <-incoming
	require.Equal(t, connector.MessageReceived, ev.Type)
	assert.JSONEq(t, `[{"Ping":{"Id":1}}]`, string(ev.Data))

	outgoing <- []byte(`[{"Ok":{"Id":1}}]`)
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Ok":{"Id":1}}]`, string(data))

	require.NoError(t, got.Disconnect())
}
