package supervisor

import (
	"context"
	"errors"
	"testing"

	"droidpilot/internal/action"
	"droidpilot/internal/device/devicetest"
	"droidpilot/internal/faults"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var click = action.Click{At: action.Point{X: 10, Y: 20}}

func TestDispatchSucceedsFirstTry(t *testing.T) {
	dev := devicetest.New(100, 200)
	out, err := New(dev, Options{}).Dispatch(context.Background(), click)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Attempts: 1}, out)
	assert.Equal(t, 0, dev.Reconnects)
	assert.Equal(t, []string{"click"}, dev.ActionTypes())
}

func TestTransientThenReconnectSucceeds(t *testing.T) {
	dev := devicetest.New(100, 200)
	dev.DispatchErrs = []error{faults.Transient("dispatch", errors.New("connection refused"))}

	out, err := New(dev, Options{}).Dispatch(context.Background(), click)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Attempts: 2, Reconnected: true}, out)
	assert.Equal(t, 1, dev.Reconnects)
	assert.Len(t, dev.Dispatched, 2)
}

func TestTransientTwiceEscalates(t *testing.T) {
	dev := devicetest.New(100, 200)
	dev.DispatchErrs = []error{
		faults.Transient("dispatch", errors.New("refused")),
		faults.Transient("dispatch", errors.New("refused again")),
		faults.Transient("dispatch", errors.New("never reached")),
	}
	out, err := New(dev, Options{}).Dispatch(context.Background(), click)
	require.Error(t, err)
	assert.Equal(t, faults.KindTransientDevice, faults.KindOf(err))
	assert.Equal(t, Escalate, Classify(err))
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, dev.Reconnects)
	assert.Len(t, dev.Dispatched, 2)
}

func TestReconnectFailureEscalates(t *testing.T) {
	dev := devicetest.New(100, 200)
	dev.DispatchErrs = []error{faults.Transient("dispatch", errors.New("refused"))}
	dev.ReconnectErrs = []error{errors.New("health: 500")}

	out, err := New(dev, Options{}).Dispatch(context.Background(), click)
	require.Error(t, err)
	assert.Equal(t, faults.KindTransientDevice, faults.KindOf(err))
	assert.False(t, out.Reconnected)
	assert.Len(t, dev.Dispatched, 1)
}

func TestNonTransientErrorIsNotRetried(t *testing.T) {
	dev := devicetest.New(100, 200)
	dev.DispatchErrs = []error{errors.New("execute_action: bad request")}
	out, err := New(dev, Options{}).Dispatch(context.Background(), click)
	require.Error(t, err)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 0, dev.Reconnects)
}

func TestTerminalActionsAreRejected(t *testing.T) {
	dev := devicetest.New(100, 200)
	_, err := New(dev, Options{}).Dispatch(context.Background(), action.Report{Success: true})
	assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	assert.Empty(t, dev.Dispatched)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Decision
	}{
		{err: nil, want: Proceed},
		{err: faults.Validation("x", "bad"), want: Correct},
		{err: faults.Lookup("fly"), want: Correct},
		{err: faults.Budget(10), want: Escalate},
		{err: faults.Transient("dispatch", errors.New("x")), want: Escalate},
		{err: errors.New("boom"), want: Escalate},
	}
	for _, tc := range tests {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v)=%s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestObserveReconnectsOnTransient(t *testing.T) {
	dev := devicetest.New(100, 200)
	dev.ObserveErrs = []error{faults.Transient("observe", errors.New("connection reset"))}

	obs, out, err := New(dev, Options{}).Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Outcome{Attempts: 2, Reconnected: true}, out)
	assert.Equal(t, 100, obs.Width)
	assert.Equal(t, 2, dev.Observed)
}

func TestNilSupervisor(t *testing.T) {
	var s *Supervisor
	_, err := s.Dispatch(context.Background(), click)
	assert.Equal(t, faults.KindOrchestration, faults.KindOf(err))
	_, _, err = s.Observe(context.Background())
	assert.Equal(t, faults.KindOrchestration, faults.KindOf(err))
}
