package lovenseconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/message"
)

func TestEndpointWriteValueSendsCommand(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL}
	cfg.withDefaults()
	e := endpoint{cfg: cfg, id: "abc123"}

	err := e.WriteValue(context.Background(), nil, message.EndpointTx, []byte("Vibrate:10;"), false)
	require.NoError(t, err)
	assert.Equal(t, "/command?id=abc123&command=Vibrate:10;", gotPath)
}

func TestEndpointWriteValueRejectsNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL}
	cfg.withDefaults()
	e := endpoint{cfg: cfg, id: "abc123"}

	err := e.WriteValue(context.Background(), nil, message.EndpointTx, []byte("Vibrate:10;"), false)
	assert.Error(t, err)
}

func TestEndpointReadValueReturnsBattery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"abc123":{"id":"abc123","name":"Lush","status":1,"battery":88}}`))
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL}
	cfg.withDefaults()
	e := endpoint{cfg: cfg, id: "abc123"}

	data, err := e.ReadValue(context.Background(), message.EndpointRx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, byte(88), data[0])
}

func TestEndpointReadValueMissingToy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL}
	cfg.withDefaults()
	e := endpoint{cfg: cfg, id: "abc123"}

	_, err := e.ReadValue(context.Background(), message.EndpointRx, 1, time.Second)
	assert.Error(t, err)
}

func TestEndpointSubscribeUnsupported(t *testing.T) {
	e := endpoint{}
	_, err := e.Subscribe(context.Background(), message.EndpointRx)
	assert.Error(t, err)
	assert.NoError(t, e.Unsubscribe(context.Background(), message.EndpointRx))
	assert.NoError(t, e.Disconnect())
}

func TestDecodeToys(t *testing.T) {
	toys, err := decodeToys(strings.NewReader(`{"a":{"id":"a","name":"Lush"},"b":{"id":"b","name":"Hush"}}`))
	require.NoError(t, err)
	assert.Len(t, toys, 2)
}
