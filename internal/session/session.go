// Package session holds the per-goal mutable state shared by the planner and
// its control calls.
package session

import (
	"fmt"
	"sync"
	"time"

	"droidpilot/internal/scratchpad"
	"droidpilot/internal/todo"

	"github.com/google/uuid"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusReset      Status = "reset"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusReset, StatusTimeout:
		return true
	}
	return false
}

// Phase is the orchestrator's position in the control loop.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePlanning        Phase = "planning"
	PhaseDispatching     Phase = "dispatching"
	PhaseAwaitingSubtask Phase = "awaiting_subtask"
	PhaseFinalizing      Phase = "finalizing"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
	PhaseReset           Phase = "reset"
)

// Models names the reasoning engines used by each tier.
type Models struct {
	Planner  string `json:"planner_model"`
	Executor string `json:"executor_model"`
}

// Session is one goal's lifetime. The todo list and scratchpad are written only
// by the planner tier.
type Session struct {
	ID        string
	Goal      string
	StartedAt time.Time
	EndedAt   time.Time
	Models    Models
	Width     int
	Height    int
	Scale     float64

	Todos *todo.List
	Pad   *scratchpad.Pad

	mu            sync.Mutex
	status        Status
	phase         Phase
	success       bool
	reason        string
	answer        string
	plannerSteps  int
	executorRuns  int
	executorSteps int
	activeSubloop string
}

func New(goal string, models Models) *Session {
	return &Session{
		ID:        NewID(),
		Goal:      goal,
		StartedAt: time.Now().UTC(),
		Models:    models,
		Todos:     todo.New(),
		Pad:       scratchpad.New(),
		status:    StatusInProgress,
		phase:     PhaseIdle,
	}
}

// NewID returns "sess_<unix>_<uuid8>".
func NewID() string {
	return fmt.Sprintf("sess_%d_%s", time.Now().UTC().Unix(), uuid.NewString()[:8])
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Success() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.success
}

func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) SetPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Finish moves the session to a terminal status. It returns false, and changes
// nothing, when the session already ended.
func (s *Session) Finish(status Status, success bool, reason string) bool {
	if !status.Terminal() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.success = success && status == StatusCompleted
	s.reason = reason
	s.EndedAt = time.Now().UTC()
	switch status {
	case StatusCompleted:
		s.phase = PhaseDone
	case StatusReset:
		s.phase = PhaseReset
	default:
		s.phase = PhaseFailed
	}
	return true
}

func (s *Session) SetAnswer(text string) {
	s.mu.Lock()
	s.answer = text
	s.mu.Unlock()
}

func (s *Session) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

// NextPlannerStep increments and returns the planner step counter.
func (s *Session) NextPlannerStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plannerSteps++
	return s.plannerSteps
}

func (s *Session) PlannerSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plannerSteps
}

// BeginSubloop records the delegating call id of the active executor run.
func (s *Session) BeginSubloop(callID string) {
	s.mu.Lock()
	s.activeSubloop = callID
	s.executorRuns++
	s.phase = PhaseAwaitingSubtask
	s.mu.Unlock()
}

func (s *Session) EndSubloop(steps int) {
	s.mu.Lock()
	s.activeSubloop = ""
	s.executorSteps += steps
	if !s.status.Terminal() {
		s.phase = PhaseDispatching
	}
	s.mu.Unlock()
}

func (s *Session) ActiveSubloop() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSubloop
}

func (s *Session) ExecutorSteps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executorSteps
}

// ClearState empties the todo list and the scratchpad.
func (s *Session) ClearState() {
	s.Todos.Clear()
	s.Pad.Clear()
}
