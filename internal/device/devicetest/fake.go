// Package devicetest provides an in-memory device.Device for tests.
package devicetest

import (
	"context"
	"image"
	"image/color"
	"sync"

	"droidpilot/internal/device"
)

// Fake records every call. Errors queued in DispatchErrs, ObserveErrs and
// ReconnectErrs are returned by successive calls before they start succeeding.
type Fake struct {
	mu sync.Mutex

	Width, Height int
	Screen        image.Image

	DispatchErrs  []error
	ReconnectErrs []error
	ObserveErrs   []error

	Dispatched []map[string]any
	Observed   int
	Reconnects int
	Resets     int
	Backs      int
	Homes      int
	Launched   []string
}

var _ device.Device = (*Fake)(nil)

// New returns a fake with a blank screen of the given logical size.
func New(width, height int) *Fake {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return &Fake{Width: width, Height: height, Screen: img}
}

func (f *Fake) Observe(context.Context) (device.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Observed++
	if len(f.ObserveErrs) > 0 {
		err := f.ObserveErrs[0]
		f.ObserveErrs = f.ObserveErrs[1:]
		return device.Observation{}, err
	}
	return device.Observation{Screenshot: f.Screen, Width: f.Width, Height: f.Height}, nil
}

func (f *Fake) Dispatch(_ context.Context, action map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dispatched = append(f.Dispatched, action)
	if len(f.DispatchErrs) > 0 {
		err := f.DispatchErrs[0]
		f.DispatchErrs = f.DispatchErrs[1:]
		return err
	}
	return nil
}

func (f *Fake) NavigateBack(context.Context) error {
	f.mu.Lock()
	f.Backs++
	f.mu.Unlock()
	return nil
}

func (f *Fake) NavigateHome(context.Context) error {
	f.mu.Lock()
	f.Homes++
	f.mu.Unlock()
	return nil
}

func (f *Fake) LaunchApp(_ context.Context, name string) error {
	f.mu.Lock()
	f.Launched = append(f.Launched, name)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Reset(context.Context, bool) error {
	f.mu.Lock()
	f.Resets++
	f.mu.Unlock()
	return nil
}

func (f *Fake) Reconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reconnects++
	if len(f.ReconnectErrs) > 0 {
		err := f.ReconnectErrs[0]
		f.ReconnectErrs = f.ReconnectErrs[1:]
		return err
	}
	return nil
}

// ActionTypes lists the action_type of every dispatched action.
func (f *Fake) ActionTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Dispatched))
	for _, a := range f.Dispatched {
		s, _ := a["action_type"].(string)
		out = append(out, s)
	}
	return out
}
