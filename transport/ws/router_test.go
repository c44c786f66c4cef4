package ws_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/connector"
	"github.com/xmidt-org/devbridge/transport/ws"
)

func TestRouterHealthz(t *testing.T) {
	r := ws.NewRouter(ws.Options{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterMetricsFallsBackToDefaultHandler(t *testing.T) {
	r := ws.NewRouter(ws.Options{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouterWsUpgradesAndInvokesSessionFactory(t *testing.T) {
	called := make(chan *connector.Connector, 1)
	r := ws.NewRouter(ws.Options{
		NewSession: func(conn *connector.Connector) {
			called <- conn
			_ = conn.Close()
		},
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):] + "/ws"
	client, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case conn := <-called:
		assert.NotNil(t, conn)
	default:
		t.Fatal("session factory was not invoked")
	}
}
