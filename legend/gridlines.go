package legend

import "image"

// gridLine is one detected vertical column-boundary line, in page-point
// space (top-left origin, y-down), dark in at least 30% of the sampled rows.
//
// The original service finds these by walking PyMuPDF's page.get_drawings()
// vector paths for near-vertical line segments. ledongthuc/pdf does not
// expose content-stream vector paths, so this instead scans the already
// rasterized legend page for columns that are dark in at least 30% of the
// sampled rows (minSpanFrac) — the same geometric signal
// (a long, mostly-continuous vertical line) read off the raster instead of
// the path operators that drew it.
type gridLine struct {
	X float64 // page points
}

// detectGridLines scans img (the hi-res legend page raster) for vertical
// grid lines and returns their X positions in page-point space. scale
// converts pixels to points (72/dpi).
func detectGridLines(img image.Image, scale float64) []gridLine {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	gray := toGray(img)

	const (
		darkThreshold = 150
		minSpanFrac   = 0.3
	)

	var lines []gridLine
	lastX := -1000
	for x := 0; x < w; x++ {
		dark := 0
		for y := 0; y < h; y += 2 {
			if int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < darkThreshold {
				dark++
			}
		}
		frac := float64(dark) / float64((h+1)/2)
		if frac < minSpanFrac {
			continue
		}
		if x-lastX < 5 {
			continue
		}
		lastX = x
		lines = append(lines, gridLine{X: float64(x) * scale})
	}
	return lines
}

// nearestLineLeftOf returns the rightmost detected grid line strictly left
// of x, or ok=false if none exists.
func nearestLineLeftOf(lines []gridLine, x float64) (float64, bool) {
	best := -1.0
	found := false
	for _, l := range lines {
		if l.X < x && l.X > best {
			best = l.X
			found = true
		}
	}
	return best, found
}
