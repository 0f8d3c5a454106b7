// Package faults defines the error taxonomy shared by the planner, the executor
// and the dispatch supervisor.
package faults

import (
	"errors"
	"fmt"
)

// Kind is the supervisor-level classification of an error.
type Kind string

const (
	KindNone            Kind = ""
	KindValidation      Kind = "validation"
	KindLookup          Kind = "lookup"
	KindTransientDevice Kind = "transient_device"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindOrchestration   Kind = "orchestration"
	KindUnknown         Kind = "unknown"
)

// ValidationError reports malformed arguments. Recoverable: the caller gets it
// back as a tool result and may correct itself.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid arguments: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LookupError reports an unknown tool or action name.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// TransientDeviceError reports lost connectivity to the device.
type TransientDeviceError struct {
	Op  string
	Err error
}

func (e *TransientDeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device unreachable during %s", e.Op)
	}
	return fmt.Sprintf("device unreachable during %s: %v", e.Op, e.Err)
}

func (e *TransientDeviceError) Unwrap() error { return e.Err }

// BudgetExhaustedError reports that a bounded loop hit its iteration cap.
type BudgetExhaustedError struct {
	Limit int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("step budget exhausted after %d iterations", e.Limit)
}

// OrchestrationError reports a broken session contract. Fatal to the session.
type OrchestrationError struct {
	Reason string
}

func (e *OrchestrationError) Error() string {
	return "orchestration: " + e.Reason
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func Lookup(name string) error {
	return &LookupError{Name: name}
}

func Transient(op string, err error) error {
	return &TransientDeviceError{Op: op, Err: err}
}

func Budget(limit int) error {
	return &BudgetExhaustedError{Limit: limit}
}

func Orchestration(format string, args ...any) error {
	return &OrchestrationError{Reason: fmt.Sprintf(format, args...)}
}

// KindOf classifies err by walking its wrap chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var (
		validation *ValidationError
		lookup     *LookupError
		transient  *TransientDeviceError
		budget     *BudgetExhaustedError
		orch       *OrchestrationError
	)
	switch {
	case errors.As(err, &orch):
		return KindOrchestration
	case errors.As(err, &budget):
		return KindBudgetExhausted
	case errors.As(err, &transient):
		return KindTransientDevice
	case errors.As(err, &lookup):
		return KindLookup
	case errors.As(err, &validation):
		return KindValidation
	default:
		return KindUnknown
	}
}

// Recoverable reports whether the issuing loop may continue after err.
func Recoverable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindLookup:
		return true
	default:
		return false
	}
}
