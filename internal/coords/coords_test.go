package coords

import (
	"image"
	"strings"
	"testing"

	"droidpilot/internal/faults"
)

func TestNewRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		scale  float64
		wantOK bool
	}{
		{name: "ok", w: 1080, h: 2400, scale: 0.4, wantOK: true},
		{name: "identity", w: 1080, h: 2400, scale: 1, wantOK: true},
		{name: "zero scale", w: 1080, h: 2400, scale: 0},
		{name: "scale above one", w: 1080, h: 2400, scale: 1.5},
		{name: "zero width", w: 0, h: 2400, scale: 0.4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.w, tc.h, tc.scale)
			if tc.wantOK && err != nil {
				t.Fatalf("New: %v", err)
			}
			if !tc.wantOK && faults.KindOf(err) != faults.KindValidation {
				t.Fatalf("err=%v, want validation error", err)
			}
		})
	}
}

func TestToDeviceRounds(t *testing.T) {
	tr, err := New(1080, 2400, 0.4)
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := tr.ToDevice(100, 250.3)
	if err != nil {
		t.Fatalf("ToDevice: %v", err)
	}
	if x != 250 || y != 626 {
		t.Fatalf("ToDevice=(%d,%d), want (250,626)", x, y)
	}
}

func TestToDeviceOutOfRangeIsNotClamped(t *testing.T) {
	tr, _ := New(1080, 2400, 0.4)
	for _, p := range [][2]float64{{-1, 10}, {433, 10}, {10, 961}, {10, -0.5}} {
		_, _, err := tr.ToDevice(p[0], p[1])
		if faults.KindOf(err) != faults.KindValidation {
			t.Fatalf("ToDevice(%v,%v) err=%v, want validation error", p[0], p[1], err)
		}
	}
	// Edges are inclusive.
	if _, _, err := tr.ToDevice(432, 960); err != nil {
		t.Fatalf("edge point rejected: %v", err)
	}
}

func TestRoundTripWithinOnePixel(t *testing.T) {
	scales := []float64{0.25, 0.33, 0.4, 0.5, 0.75, 1}
	for _, s := range scales {
		tr, err := New(1080, 2400, s)
		if err != nil {
			t.Fatal(err)
		}
		for x := 0; x <= 1080; x += 37 {
			for y := 0; y <= 2400; y += 113 {
				sx, sy := tr.ToScaled(x, y)
				dx, dy, err := tr.ToDevice(sx, sy)
				if err != nil {
					t.Fatalf("s=%v (%d,%d): %v", s, x, y, err)
				}
				if abs(dx-x) > 1 || abs(dy-y) > 1 {
					t.Fatalf("s=%v round trip (%d,%d) -> (%d,%d)", s, x, y, dx, dy)
				}
			}
		}
	}
}

func TestScaleImage(t *testing.T) {
	tr, _ := New(100, 200, 0.5)
	src := image.NewRGBA(image.Rect(0, 0, 100, 200))
	out := tr.ScaleImage(src)
	if b := out.Bounds(); b.Dx() != 50 || b.Dy() != 100 {
		t.Fatalf("scaled bounds=%v, want 50x100", b)
	}
	if tr.ScaleImage(nil) != nil {
		t.Fatal("nil image should stay nil")
	}
}

func TestDataURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	url, err := DataURL(img)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("url=%q", url[:30])
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
