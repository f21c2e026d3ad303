package render

import (
	"image"
	"testing"
)

func TestDPIFor_ClampsToMinAndCeiling(t *testing.T) {
	opts := Options{MaxPixelExtent: 5000, MinDPI: 72, HardCeilingDPI: 300}

	// A very large page drives the raw formula below MinDPI.
	if got := dpiFor(10000, opts); got != 72 {
		t.Fatalf("large page: got %v, want 72 (MinDPI)", got)
	}
	// A very small page (e.g. a tight clip) drives the raw formula above
	// the hard ceiling.
	if got := dpiFor(10, opts); got != 300 {
		t.Fatalf("small page: got %v, want 300 (HardCeilingDPI)", got)
	}
	// A mid-size page should land strictly between.
	got := dpiFor(2000, opts)
	if got <= opts.MinDPI || got >= opts.HardCeilingDPI {
		t.Fatalf("mid page: got %v, want strictly between %v and %v", got, opts.MinDPI, opts.HardCeilingDPI)
	}
}

func TestBulkDPI_AdaptsToPageCount(t *testing.T) {
	cases := []struct {
		pages int
		want  float64
	}{
		{1, 200},
		{10, 200},
		{11, 150},
		{30, 150},
		{31, 120},
		{500, 120},
	}
	for _, tc := range cases {
		if got := BulkDPI(tc.pages); got != tc.want {
			t.Errorf("BulkDPI(%d) = %v, want %v", tc.pages, got, tc.want)
		}
	}
}

func TestCropToRect_CropsWithinBoundsAndClamps(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	full := pointSize{w: 200, h: 100} // at 72 dpi, 1pt == 1px

	cropped := cropToRect(img, full, &Rect{X0: 10, Y0: 10, X1: 50, Y1: 40}, 72)
	b := cropped.Bounds()
	if b.Dx() != 40 || b.Dy() != 30 {
		t.Fatalf("expected 40x30 crop, got %dx%d", b.Dx(), b.Dy())
	}

	// A clip extending past the page edge is clamped to image bounds.
	clamped := cropToRect(img, full, &Rect{X0: 180, Y0: 80, X1: 260, Y1: 160}, 72)
	cb := clamped.Bounds()
	if cb.Max.X > 200 || cb.Max.Y > 100 {
		t.Fatalf("expected clamp to image bounds, got %v", cb)
	}
}
