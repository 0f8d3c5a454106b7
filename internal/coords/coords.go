// Package coords maps between device pixel space and the scaled space shown to
// the reasoning engine.
package coords

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"droidpilot/internal/faults"

	"golang.org/x/image/draw"
)

// DefaultScale is the screenshot down-scaling factor used when none is configured.
const DefaultScale = 0.4

// Transform holds the logical device resolution and the scale factor.
type Transform struct {
	Width  int
	Height int
	Scale  float64
}

// New validates the resolution and the scale factor.
func New(width, height int, scale float64) (Transform, error) {
	if width <= 0 || height <= 0 {
		return Transform{}, faults.Validation("screen size", "%dx%d is not a valid resolution", width, height)
	}
	if !(scale > 0 && scale <= 1) {
		return Transform{}, faults.Validation("scale factor", "%v is outside (0,1]", scale)
	}
	return Transform{Width: width, Height: height, Scale: scale}, nil
}

// ScaledSize is the presentation size (width*s, height*s).
func (t Transform) ScaledSize() (int, int) {
	return scaleDim(t.Width, t.Scale), scaleDim(t.Height, t.Scale)
}

// ToDevice maps reasoning-engine coordinates to device space as round(x/s).
// Results outside [0,width]x[0,height] are a validation error, never clamped.
func (t Transform) ToDevice(x, y float64) (int, int, error) {
	if t.Scale <= 0 {
		return 0, 0, faults.Validation("scale factor", "transform is not initialised")
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, faults.Validation("coordinate", "(%v, %v) is not a finite number", x, y)
	}
	dx := int(math.Round(x / t.Scale))
	dy := int(math.Round(y / t.Scale))
	if dx < 0 || dx > t.Width {
		sw, _ := t.ScaledSize()
		return 0, 0, faults.Validation("x", "%v maps to %d, outside screen width %d (scaled range 0..%d)", x, dx, t.Width, sw)
	}
	if dy < 0 || dy > t.Height {
		_, sh := t.ScaledSize()
		return 0, 0, faults.Validation("y", "%v maps to %d, outside screen height %d (scaled range 0..%d)", y, dy, t.Height, sh)
	}
	return dx, dy, nil
}

// ToScaled maps a device coordinate into presentation space.
func (t Transform) ToScaled(x, y int) (float64, float64) {
	return float64(x) * t.Scale, float64(y) * t.Scale
}

// ScaleImage resizes a device screenshot to the presentation size.
func (t Transform) ScaleImage(src image.Image) image.Image {
	if src == nil {
		return nil
	}
	w, h := t.ScaledSize()
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode png: nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL returns img as a base64 PNG data URL for multimodal messages.
func DataURL(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func scaleDim(v int, s float64) int {
	n := int(math.Round(float64(v) * s))
	if n < 1 {
		n = 1
	}
	return n
}
