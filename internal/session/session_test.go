package session

import (
	"strings"
	"testing"
)

func TestFinishIsMonotonic(t *testing.T) {
	s := New("open settings", Models{Planner: "p", Executor: "e"})
	if s.Status() != StatusInProgress {
		t.Fatalf("status=%q, want in_progress", s.Status())
	}
	if s.Finish(StatusInProgress, false, "") {
		t.Fatal("in_progress is not a terminal status")
	}
	if !s.Finish(StatusCompleted, true, "done") {
		t.Fatal("first finish should apply")
	}
	for _, st := range []Status{StatusFailed, StatusReset, StatusTimeout, StatusCompleted} {
		if s.Finish(st, false, "again") {
			t.Fatalf("finish(%s) applied after terminal state", st)
		}
	}
	if s.Status() != StatusCompleted || !s.Success() || s.Reason() != "done" {
		t.Fatalf("unexpected final state: %s %t %q", s.Status(), s.Success(), s.Reason())
	}
	if s.Phase() != PhaseDone {
		t.Fatalf("phase=%q, want done", s.Phase())
	}
}

func TestSuccessOnlyWhenCompleted(t *testing.T) {
	s := New("g", Models{})
	s.Finish(StatusTimeout, true, "ran out")
	if s.Success() {
		t.Fatal("timeout must not be a success")
	}
}

func TestSubloopBookkeeping(t *testing.T) {
	s := New("g", Models{})
	s.BeginSubloop("call_1")
	if s.ActiveSubloop() != "call_1" || s.Phase() != PhaseAwaitingSubtask {
		t.Fatalf("active=%q phase=%q", s.ActiveSubloop(), s.Phase())
	}
	s.EndSubloop(3)
	if s.ActiveSubloop() != "" || s.ExecutorSteps() != 3 {
		t.Fatalf("active=%q steps=%d", s.ActiveSubloop(), s.ExecutorSteps())
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "sess_") || len(strings.Split(id, "_")) != 3 {
		t.Fatalf("id=%q", id)
	}
}
