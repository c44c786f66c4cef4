package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmidt-org/devbridge/protocol"
	"github.com/xmidt-org/devbridge/protocol/command"
)

// fakeHandler wraps protocol.Unimplemented with a configurable keep-alive
// strategy and full-command-set flag, independent of any concrete
// protocol.
type fakeHandler struct {
	protocol.Unimplemented
	strategy   protocol.KeepAliveStrategy
	fullCmdSet bool
	resetCt    int
}

func (h *fakeHandler) Name() string                               { return "fake" }
func (h *fakeHandler) KeepAliveStrategy() protocol.KeepAliveStrategy { return h.strategy }
func (h *fakeHandler) NeedsFullCommandSet() bool                    { return h.fullCmdSet }
func (h *fakeHandler) Reset()                                       { h.resetCt++ }

type recordingSender struct {
	mu    sync.Mutex
	sends int
}

func (r *recordingSender) Send(ctx context.Context, cmds []protocol.HardwareCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends++
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sends
}

func TestApplyDedupsRepeatedValue(t *testing.T) {
	h := &fakeHandler{strategy: protocol.KeepAliveNone}
	mgr := command.New(h, &recordingSender{}, time.Second, nil)

	calls := 0
	emit := func() ([]protocol.HardwareCommand, error) {
		calls++
		return []protocol.HardwareCommand{{Data: []byte{1}}}, nil
	}

	cmds, err := mgr.Apply(context.Background(), 0, 5, emit)
	require.NoError(t, err)
	assert.Len(t, cmds, 1)

	cmds, err = mgr.Apply(context.Background(), 0, 5, emit)
	require.NoError(t, err)
	assert.Nil(t, cmds)
	assert.Equal(t, 1, calls)
}

func TestApplyNeverDedupsWhenFullCommandSetRequired(t *testing.T) {
	h := &fakeHandler{strategy: protocol.KeepAliveNone, fullCmdSet: true}
	mgr := command.New(h, &recordingSender{}, time.Second, nil)

	emit := func() ([]protocol.HardwareCommand, error) { return []protocol.HardwareCommand{{}}, nil }

	_, err := mgr.Apply(context.Background(), 0, 5, emit)
	require.NoError(t, err)
	cmds, err := mgr.Apply(context.Background(), 0, 5, emit)
	require.NoError(t, err)
	assert.NotNil(t, cmds)
}

func TestRunRepeatsLastPacketOnKeepAliveTimer(t *testing.T) {
	h := &fakeHandler{strategy: protocol.KeepAliveRepeatLastPacket}
	sender := &recordingSender{}
	mgr := command.New(h, sender, 20*time.Millisecond, nil)

	_, err := mgr.Apply(context.Background(), 0, 1, func() ([]protocol.HardwareCommand, error) {
		return []protocol.HardwareCommand{{Data: []byte{1}}}, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	mgr.Run(ctx)

	assert.GreaterOrEqual(t, sender.count(), 2)
}

func TestResetClearsStateAndCallsHandlerReset(t *testing.T) {
	h := &fakeHandler{strategy: protocol.KeepAliveNone}
	mgr := command.New(h, &recordingSender{}, time.Second, nil)

	_, _ = mgr.Apply(context.Background(), 0, 5, func() ([]protocol.HardwareCommand, error) {
		return []protocol.HardwareCommand{{}}, nil
	})
	mgr.Reset()
	assert.Equal(t, 1, h.resetCt)

	cmds, err := mgr.Apply(context.Background(), 0, 5, func() ([]protocol.HardwareCommand, error) {
		return []protocol.HardwareCommand{{}}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, cmds)
}
