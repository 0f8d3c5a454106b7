// Package device talks to the device server that owns the real (or emulated)
// screen.
package device

import (
	"context"
	"image"
)

// Observation is one screenshot plus the logical screen size actions are
// expressed in.
type Observation struct {
	Screenshot image.Image
	Width      int
	Height     int
}

// Device is the collaborator the planner and executor act through. Errors
// caused by lost connectivity are faults.TransientDeviceError.
type Device interface {
	Observe(ctx context.Context) (Observation, error)
	Dispatch(ctx context.Context, action map[string]any) error
	NavigateBack(ctx context.Context) error
	NavigateHome(ctx context.Context) error
	LaunchApp(ctx context.Context, name string) error
	Reset(ctx context.Context, goHome bool) error
	Reconnect(ctx context.Context) error
}
