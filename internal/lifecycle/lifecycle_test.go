package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/chickenshell/internal/supervisor"
)

type fakeSidecar struct {
	startErr error
	stopErr  error
	starts   int
	stops    int
	order    *[]string
}

func (f *fakeSidecar) Start(context.Context) error { f.starts++; return f.startErr }
func (f *fakeSidecar) Stop(context.Context) error {
	f.stops++
	if f.order != nil {
		*f.order = append(*f.order, "stop")
	}
	return f.stopErr
}

type fakeState struct {
	err   error
	saves int
	order *[]string
}

func (f *fakeState) Save() error {
	f.saves++
	if f.order != nil {
		*f.order = append(*f.order, "save")
	}
	return f.err
}

func TestOnStartup_FailureDoesNotPanic(t *testing.T) {
	sc := &fakeSidecar{startErr: supervisor.ErrLaunchFailed}
	New(sc, nil, true, nil).OnStartup(context.Background())
	assert.Equal(t, 1, sc.starts)
}

func TestOnStartup_AutostartOff(t *testing.T) {
	sc := &fakeSidecar{}
	New(sc, nil, false, nil).OnStartup(context.Background())
	assert.Equal(t, 0, sc.starts)
}

func TestOnExit_NotRunningIsBenign(t *testing.T) {
	var order []string
	sc := &fakeSidecar{stopErr: fmt.Errorf("wrapped: %w", supervisor.ErrNotRunning), order: &order}
	st := &fakeState{order: &order}
	require.NoError(t, New(sc, st, true, nil).OnExitRequested(context.Background()))
	assert.Equal(t, []string{"save", "stop"}, order)
}

func TestOnExit_JoinsErrors(t *testing.T) {
	saveErr := errors.New("disk full")
	sc := &fakeSidecar{stopErr: supervisor.ErrKillFailed}
	st := &fakeState{err: saveErr}
	err := New(sc, st, true, nil).OnExitRequested(context.Background())
	require.ErrorIs(t, err, saveErr)
	require.ErrorIs(t, err, supervisor.ErrKillFailed)
	assert.Equal(t, 1, sc.stops, "sidecar is stopped even when saving state failed")
}
