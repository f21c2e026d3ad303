package legend

import (
	"image"
	"image/color"
	"sort"
)

// toGray converts img to a pixel-addressable grayscale buffer.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g
}

func toRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok {
		return r
	}
	b := img.Bounds()
	r := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r.Set(x, y, img.At(x, y))
		}
	}
	return r
}

// whitenGrayBackground converts a near-uniform gray background to white
// while preserving dark lines/text (spec §4.2 phase 4, ported from
// _whiten_gray_background). It leaves pure-white or pure-black images
// untouched (spec §8 boundary behavior).
func whitenGrayBackground(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 10 || h < 10 {
		return img
	}
	gray := toGray(img)

	var edges []int
	for x := b.Min.X; x < b.Max.X; x++ {
		edges = append(edges, int(gray.GrayAt(x, b.Min.Y).Y), int(gray.GrayAt(x, b.Max.Y-1).Y))
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		edges = append(edges, int(gray.GrayAt(b.Min.X, y).Y), int(gray.GrayAt(b.Max.X-1, y).Y))
	}
	bgMedian := median(edges)

	doWhiten := false
	bgValue := float64(bgMedian)

	if bgMedian >= 180 && bgMedian <= 245 {
		doWhiten = true
	}

	if !doWhiten {
		inBand := 0
		total := w * h
		var bandPixels []int
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v := int(gray.GrayAt(x, y).Y)
				if v >= 180 && v <= 240 {
					inBand++
					bandPixels = append(bandPixels, v)
				}
			}
		}
		if total > 0 && float64(inBand)/float64(total) > 0.15 {
			doWhiten = true
			bgValue = float64(median(bandPixels))
		}
	}

	if !doWhiten {
		return img
	}

	tolerance := 25.0
	low, high := bgValue-tolerance, bgValue+tolerance

	rgba := toRGBA(img)
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(gray.GrayAt(x, y).Y)
			if v >= low && v <= high {
				out.Set(x, y, color.White)
			} else {
				out.Set(x, y, rgba.At(x, y))
			}
		}
	}
	return out
}

func median(vals []int) int {
	if len(vals) == 0 {
		return 255
	}
	cp := append([]int(nil), vals...)
	sort.Ints(cp)
	return cp[len(cp)/2]
}

// trimGridBorders strips residual grid-line pixels from a cropped symbol's
// edges using a two-threshold dark-pixel-fraction scan (spec §4.2 phase 4,
// ported from _trim_grid_borders).
func trimGridBorders(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if h < 10 || w < 20 {
		return img
	}
	gray := toGray(img)

	const (
		darkStrict  = 180
		darkLoose   = 140
		ratioStrict = 0.25
		ratioLoose  = 0.50
	)
	maxCheckX := min(40, w/3)
	maxCheckY := min(30, h/3)

	vline := func(xs []int, threshold int, ratio float64) int {
		best := -1
		for _, x := range xs {
			dark := 0
			for y := 0; y < h; y++ {
				if int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < threshold {
					dark++
				}
			}
			if float64(dark)/float64(h) > ratio {
				best = x
			}
		}
		return best
	}
	hline := func(ys []int, threshold int, ratio float64) int {
		best := -1
		for _, y := range ys {
			dark := 0
			for x := 0; x < w; x++ {
				if int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < threshold {
					dark++
				}
			}
			if float64(dark)/float64(w) > ratio {
				best = y
			}
		}
		return best
	}

	rangeUp := func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	rangeDown := func(from, n int) []int {
		out := make([]int, 0, n)
		for i := from; i > from-n && i >= 0; i-- {
			out = append(out, i)
		}
		return out
	}

	left := 0
	if vl := vline(rangeUp(maxCheckX), darkStrict, ratioStrict); vl >= 0 {
		left = vl + 1
	} else if vl := vline(rangeUp(min(15, w/4)), darkLoose, ratioLoose); vl >= 0 {
		left = vl + 1
	}

	right := w
	if vr := vline(rangeDown(w-1, maxCheckX), darkStrict, ratioStrict); vr >= 0 {
		right = vr
	} else if vr := vline(rangeDown(w-1, 15), darkLoose, ratioLoose); vr >= 0 {
		right = vr
	}

	top := 0
	if ht := hline(rangeUp(maxCheckY), darkStrict, ratioStrict); ht >= 0 {
		top = ht + 1
	} else if ht := hline(rangeUp(min(15, h/4)), darkLoose, ratioLoose); ht >= 0 {
		top = ht + 1
	}

	bottom := h
	if hb := hline(rangeDown(h-1, maxCheckY), darkStrict, ratioStrict); hb >= 0 {
		bottom = hb
	} else if hb := hline(rangeDown(h-1, 15), darkLoose, ratioLoose); hb >= 0 {
		bottom = hb
	}

	if left > 0 {
		left = min(left+6, w/3)
	}
	if right < w {
		right = max(right-6, w*2/3)
	}
	if top > 0 {
		top = min(top+5, h/3)
	}
	if bottom < h {
		bottom = max(bottom-5, h*2/3)
	}

	if left >= right || top >= bottom {
		return img
	}
	if left > 0 || right < w || top > 0 || bottom < h {
		return cropImage(img, left, top, right, bottom)
	}
	return img
}

// autoCropToContent crops img to its non-white content bounding box with
// padding, iteratively stripping isolated edge content (grid labels, stray
// text) separated from the main symbol by a small gap. Never strips more
// than 40% of a dimension's span (spec §4.2 phase 4, ported from
// _auto_crop_to_content).
func autoCropToContent(img image.Image, padding int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := toGray(img)

	hasContent := func(x, y int) bool {
		return int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) < 235
	}

	xMin, yMin, xMax, yMax := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if hasContent(x, y) {
				if x < xMin {
					xMin = x
				}
				if x > xMax {
					xMax = x
				}
				if y < yMin {
					yMin = y
				}
				if y > yMax {
					yMax = y
				}
			}
		}
	}
	if xMax < 0 {
		return img
	}

	colHasContent := func(x, ya, yb int) bool {
		for y := ya; y < yb; y++ {
			if hasContent(x, y) {
				return true
			}
		}
		return false
	}
	rowHasContent := func(y, xa, xb int) bool {
		for x := xa; x < xb; x++ {
			if hasContent(x, y) {
				return true
			}
		}
		return false
	}

	const gapMin = 3

	stripEdge := func(start, totalSpan int, horizontal, forward bool, boundMin, boundMax int) int {
		cur := start
		maxStrip := totalSpan * 2 / 5
		for pass := 0; pass < 3; pass++ {
			stripped := abs(cur - start)
			if stripped >= maxStrip {
				break
			}
			remaining := maxStrip - stripped
			var limit int
			if forward {
				if horizontal {
					limit = min(cur+remaining, boundMax)
				} else {
					limit = min(cur+remaining, w)
				}
			} else {
				limit = max(cur-remaining, 0)
			}

			gapStart := -1
			found := false
			movedThisPass := false
			step := 1
			if !forward {
				step = -1
			}
			for pos := cur; (forward && pos < limit) || (!forward && pos > limit); pos += step {
				var has bool
				if horizontal {
					has = rowHasContent(pos, boundMin, boundMax)
				} else {
					has = colHasContent(pos, boundMin, boundMax)
				}
				if has {
					found = true
					if gapStart >= 0 {
						gapSize := abs(pos - gapStart)
						if gapSize >= gapMin {
							cur = pos
							movedThisPass = true
							break
						}
					}
					gapStart = -1
				} else if found && gapStart < 0 {
					gapStart = pos
				}
			}
			if !movedThisPass {
				break
			}
		}
		return cur
	}

	contentH := yMax - yMin
	yMin = stripEdge(yMin, contentH, true, true, xMin, xMax)
	newYMax := stripEdge(yMax-1, contentH, true, false, xMin, xMax)
	if newYMax > yMin {
		if newYMax < yMax-1 {
			yMax = newYMax + 1
		}
	}

	leftSpan := (xMax - xMin) / 4
	gapStartL, foundL := -1, false
	for x := xMin; x < min(xMin+leftSpan, w); x++ {
		if colHasContent(x, yMin, yMax) {
			foundL = true
			if gapStartL >= 0 && (x-gapStartL) >= gapMin {
				xMin = x
				break
			}
			gapStartL = -1
		} else if foundL && gapStartL < 0 {
			gapStartL = x
		}
	}

	rightSpan := (xMax - xMin) / 2
	gapStartR, foundR := -1, false
	for x := xMax - 1; x > max(xMax-1-rightSpan, 0); x-- {
		if colHasContent(x, yMin, yMax) {
			foundR = true
			if gapStartR >= 0 && (gapStartR-x) >= gapMin {
				xMax = x + 1
				break
			}
			gapStartR = -1
		} else if foundR && gapStartR < 0 {
			gapStartR = x
		}
	}

	xMin = max(0, xMin-padding)
	yMin = max(0, yMin-padding)
	xMax = min(w, xMax+padding)
	yMax = min(h, yMax+padding)

	if (xMax-xMin) < 20 || (yMax-yMin) < 15 {
		return img
	}
	return cropImage(img, xMin, yMin, xMax, yMax)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropImage(img image.Image, x0, y0, x1, y1 int) image.Image {
	b := img.Bounds()
	rect := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1)
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			out.Set(x-x0, y-y0, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
