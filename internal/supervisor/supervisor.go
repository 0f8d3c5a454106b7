// Package supervisor dispatches actions to the device and decides what to do
// with the errors that come back.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"droidpilot/internal/action"
	"droidpilot/internal/device"
	"droidpilot/internal/faults"
	"droidpilot/internal/logging"

	"github.com/cenkalti/backoff/v4"
)

// DefaultReconnectBackoff is the pause before the single reconnect attempt.
const DefaultReconnectBackoff = 2 * time.Second

// Decision tells a loop how to treat an error.
type Decision int

const (
	// Proceed: no error.
	Proceed Decision = iota
	// Correct: hand the error back to the reasoning engine as a tool result
	// and keep looping.
	Correct
	// Escalate: stop the loop and report a terminal failure upward.
	Escalate
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Correct:
		return "correct"
	default:
		return "escalate"
	}
}

// Classify maps an error to a Decision. Construction errors are correctable;
// everything else that reaches a loop (an exhausted budget, a transient error
// that already survived its retry, unknown failures) escalates.
func Classify(err error) Decision {
	if err == nil {
		return Proceed
	}
	if faults.Recoverable(err) {
		return Correct
	}
	return Escalate
}

// Outcome describes how a dispatch went.
type Outcome struct {
	Attempts    int
	Reconnected bool
}

type Options struct {
	// Backoff is the fixed wait before reconnecting. Zero waits not at all.
	Backoff time.Duration
	Logger  *slog.Logger
}

type Supervisor struct {
	dev     device.Device
	backoff time.Duration
	logger  *slog.Logger
}

func New(dev device.Device, opts Options) *Supervisor {
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Supervisor{dev: dev, backoff: opts.Backoff, logger: logging.OrDiscard(opts.Logger)}
}

// Dispatch sends a to the device. On a TransientDeviceError it waits the fixed
// backoff, reconnects once and retries once; a second failure is returned
// wrapped so callers still see the transient kind.
func (s *Supervisor) Dispatch(ctx context.Context, a action.Action) (Outcome, error) {
	if s == nil || s.dev == nil {
		return Outcome{}, faults.Orchestration("no device attached")
	}
	if a == nil {
		return Outcome{}, faults.Validation("action", "must not be nil")
	}
	if action.IsTerminal(a) {
		return Outcome{}, faults.Validation("action", "%s is a termination signal, not a device action", a.Type())
	}
	wire := action.WireMap(a)
	return s.retry(ctx, "dispatch "+a.Type(), func() error {
		return s.dev.Dispatch(ctx, wire)
	})
}

// Observe captures the screen under the same reconnect policy as Dispatch.
func (s *Supervisor) Observe(ctx context.Context) (device.Observation, Outcome, error) {
	if s == nil || s.dev == nil {
		return device.Observation{}, Outcome{}, faults.Orchestration("no device attached")
	}
	var obs device.Observation
	out, err := s.retry(ctx, "observe", func() error {
		o, err := s.dev.Observe(ctx)
		if err != nil {
			return err
		}
		obs = o
		return nil
	})
	return obs, out, err
}

func (s *Supervisor) retry(ctx context.Context, label string, fn func() error) (Outcome, error) {
	var out Outcome
	var lastTransient error
	op := func() error {
		out.Attempts++
		if out.Attempts > 1 {
			s.logger.Warn("device unreachable, reconnecting", "op", label, "err", lastTransient)
			if err := s.dev.Reconnect(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("reconnect failed: %w", asTransient("reconnect", err)))
			}
			out.Reconnected = true
		}
		err := fn()
		if err == nil {
			return nil
		}
		if faults.KindOf(err) == faults.KindTransientDevice {
			lastTransient = err
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.backoff), 1), ctx)
	err := backoff.Retry(op, b)
	switch {
	case err == nil:
		if out.Reconnected {
			s.logger.Info("device recovered after reconnect", "op", label, "attempts", out.Attempts)
		}
		return out, nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return out, err
	case faults.KindOf(err) == faults.KindTransientDevice && out.Reconnected:
		return out, fmt.Errorf("%s failed after reconnect: %w", label, err)
	default:
		return out, err
	}
}

func asTransient(op string, err error) error {
	if faults.KindOf(err) == faults.KindTransientDevice {
		return err
	}
	return faults.Transient(op, err)
}
