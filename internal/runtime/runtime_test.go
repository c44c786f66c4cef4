package runtime

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsRunnablesOnSignal(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})

	runnable := Func(func(shutdown <-chan struct{}) error {
		close(started)
		<-shutdown
		close(stopped)
		return nil
	})

	done := make(chan int, 1)
	go func() {
		done <- Run(log.NewNopLogger(), runnable)
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("runnable never started")
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("runnable never stopped")
	}

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("Run never returned")
	}
}
