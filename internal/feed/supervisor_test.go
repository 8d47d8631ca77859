package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

type fakeIngestor struct {
	name string
	err  error
	runs atomic.Int32
}

func (f *fakeIngestor) Name() string { return f.name }

func (f *fakeIngestor) Run(_ context.Context) error {
	f.runs.Add(1)
	return f.err
}

func TestSupervisorSingleRun(t *testing.T) {
	good := &fakeIngestor{name: "good"}
	bad := &fakeIngestor{name: "bad", err: xerrors.New("feed unavailable")}

	sup := NewSupervisor(testLogger(), 0, good, bad)

	// both pending before Start
	for _, st := range sup.Status() {
		assert.Equal(t, StatePending, st.State)
		assert.Zero(t, st.Runs)
	}

	sup.Start(context.Background())
	sup.Wait()

	status := sup.Status()
	require.Len(t, status, 2)
	// snapshot preserves registration order
	assert.Equal(t, "good", status[0].Name)
	assert.Equal(t, "bad", status[1].Name)

	assert.Equal(t, StateSucceeded, status[0].State)
	assert.Equal(t, 1, status[0].Runs)
	assert.Empty(t, status[0].LastError)
	require.NotNil(t, status[0].LastFinished)

	assert.Equal(t, StateFailed, status[1].State)
	assert.Equal(t, 1, status[1].Runs)
	assert.Equal(t, "feed unavailable", status[1].LastError)

	assert.Equal(t, int32(1), good.runs.Load())
	assert.Equal(t, int32(1), bad.runs.Load())
}

func TestSupervisorFailureClearsOnSuccess(t *testing.T) {
	flaky := &fakeIngestor{name: "flaky", err: xerrors.New("transient")}
	sup := NewSupervisor(testLogger(), 0, flaky)

	sup.Start(context.Background())
	sup.Wait()
	require.Equal(t, StateFailed, sup.Status()[0].State)

	flaky.err = nil
	sup.Start(context.Background())
	sup.Wait()

	st := sup.Status()[0]
	assert.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, 2, st.Runs)
	assert.Empty(t, st.LastError)
}

func TestSupervisorRescanInterval(t *testing.T) {
	ing := &fakeIngestor{name: "rescan"}
	sup := NewSupervisor(testLogger(), time.Millisecond, ing)

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	require.Eventually(t, func() bool {
		return ing.runs.Load() >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	sup.Wait()
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	ing := &fakeIngestor{name: "stuck"}
	sup := NewSupervisor(testLogger(), time.Hour, ing)

	ctx, cancel := context.WithCancel(context.Background())
	sup.Start(ctx)

	require.Eventually(t, func() bool {
		return ing.runs.Load() == 1
	}, 2*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Wait()
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
	// the interval sleep was interrupted, no second run happened
	assert.Equal(t, int32(1), ing.runs.Load())
}
