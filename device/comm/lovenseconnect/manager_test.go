package lovenseconnect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/device"
)

func TestManagerPollEmitsFoundAndRemoved(t *testing.T) {
	var mu sync.Mutex
	body := `{"a":{"id":"a","name":"Lush","status":1,"battery":90}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		b := body
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(b))
	}))
	defer srv.Close()

	m := New(Config{BaseURL: srv.URL, PollInterval: 10 * time.Millisecond})
	require.NoError(t, m.StartScanning(context.Background()))
	defer m.StopScanning(context.Background())

	ev := requireEvent(t, m.Events())
	assert.Equal(t, device.ScanningStarted, ev.Type)

	ev = requireEvent(t, m.Events())
	require.Equal(t, device.DeviceFound, ev.Type)
	assert.Equal(t, "Lush", ev.Descriptor.Name)
	assert.Equal(t, "a", ev.Descriptor.VendorProductID)

	mu.Lock()
	body = `{}`
	mu.Unlock()

	ev = requireEvent(t, m.Events())
	require.Equal(t, device.DeviceManuallyRemoved, ev.Type)
	assert.Equal(t, "Lush", ev.RemovedID)
}

func TestManagerStopScanningEmitsFinished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m := New(Config{BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	require.NoError(t, m.StartScanning(context.Background()))
	requireEvent(t, m.Events()) // ScanningStarted

	require.NoError(t, m.StopScanning(context.Background()))

	timeout := time.After(time.Second)
	for {
		select {
		case ev := <-m.Events():
			if ev.Type == device.ScanningFinishedEvt {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for ScanningFinishedEvt")
		}
	}
}

func requireEvent(t *testing.T, events <-chan device.CommEvent) device.CommEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return device.CommEvent{}
	}
}
