package legend

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// savePNG writes img to path, returning false if either the file creation
// or the encode fails (a crop failure degrades that symbol to image-less
// rather than aborting the whole legend page).
func savePNG(img image.Image, path string) bool {
	f, err := os.Create(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return png.Encode(f, img) == nil
}

// ptRect is a rectangle in PDF page-point space, origin top-left (y-down),
// matching render.Rect's convention.
type ptRect struct{ X0, Y0, X1, Y1 float64 }

// charWidthPt and lineHeightPt approximate a text run's footprint from its
// baseline position and character count. ledongthuc/pdf's Content().Text
// exposes only X, Y and the run string (see textextract.ElementsFromPage);
// without a reliable per-run width/font-size field to read, glyph geometry
// is approximated rather than measured.
const (
	charWidthPt  = 5.5
	lineHeightPt = 9.0
)

type textElem struct {
	x0, x1 float64
	s      string
}

// lineIndex is one visual line of page text in y-down space, with enough
// per-element position data to map a matched substring back to a rectangle.
type lineIndex struct {
	y0, y1 float64
	text   string // uppercased, concatenated in content-stream order
	starts []int  // starts[i] is text's offset where elems[i] begins
	elems  []textElem
}

// buildLineIndex groups a page's positioned text runs into visual lines
// (same Y-proximity grouping as textextract.OrderLines) and converts them
// from PDF user space (origin bottom-left, y-up) to the top-left/y-down
// space render crops are expressed in.
func buildLineIndex(page pdf.Page, ph float64) []lineIndex {
	content := page.Content()

	type rawElem struct {
		x, y float64
		s    string
	}
	raw := make([]rawElem, 0, len(content.Text))
	for _, t := range content.Text {
		raw = append(raw, rawElem{x: t.X, y: t.Y, s: t.S})
	}

	const tol = 3.0
	type group struct {
		y     float64
		elems []rawElem
	}
	var groups []*group
	var cur *group
	for _, e := range raw {
		if cur == nil || absf(e.y-cur.y) > tol {
			groups = append(groups, &group{y: e.y})
			cur = groups[len(groups)-1]
		}
		cur.elems = append(cur.elems, e)
	}

	lines := make([]lineIndex, 0, len(groups))
	for _, g := range groups {
		var b strings.Builder
		starts := make([]int, 0, len(g.elems))
		elems := make([]textElem, 0, len(g.elems))
		for _, e := range g.elems {
			starts = append(starts, b.Len())
			b.WriteString(e.s)
			elems = append(elems, textElem{
				x0: e.x,
				x1: e.x + float64(len([]rune(e.s)))*charWidthPt,
				s:  e.s,
			})
		}
		top := ph - g.y - lineHeightPt
		bottom := ph - g.y
		lines = append(lines, lineIndex{
			y0:     top,
			y1:     bottom,
			text:   strings.ToUpper(b.String()),
			starts: starts,
			elems:  elems,
		})
	}
	return lines
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// searchCandidates builds the progressively-shortened substrings locateText
// tries, longest first, matching the original's progressive substring
// search over [40, 25, 16, 10]-length prefixes.
func searchCandidates(desc string) []string {
	desc = strings.ToUpper(strings.TrimSpace(desc))
	if desc == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(desc)
	for _, n := range []int{40, 25, 16, 10} {
		if len(desc) > n {
			add(desc[:n])
		}
	}
	for _, w := range strings.Fields(desc) {
		if len(w) > 4 {
			add(w)
		}
	}
	return out
}

// locateText finds the description text on the page and returns a
// page-point rectangle spanning the matched run(s). When more than one
// line matches the same candidate, the match nearest hint (if given) wins.
func locateText(lines []lineIndex, desc string, hint *[2]float64) (ptRect, bool) {
	for _, candidate := range searchCandidates(desc) {
		var best ptRect
		bestDist := -1.0
		found := false
		for _, ln := range lines {
			idx := strings.Index(ln.text, candidate)
			if idx < 0 {
				continue
			}
			end := idx + len(candidate)
			x0, x1 := -1.0, -1.0
			for i, st := range ln.starts {
				elemEnd := st + len(ln.elems[i].s)
				if elemEnd <= idx || st >= end {
					continue
				}
				if x0 < 0 || ln.elems[i].x0 < x0 {
					x0 = ln.elems[i].x0
				}
				if ln.elems[i].x1 > x1 {
					x1 = ln.elems[i].x1
				}
			}
			if x0 < 0 {
				continue
			}
			r := ptRect{X0: x0, Y0: ln.y0, X1: x1, Y1: ln.y1}
			if hint == nil {
				return r, true
			}
			cx, cy := (r.X0+r.X1)/2, (r.Y0+r.Y1)/2
			d := (cx-hint[0])*(cx-hint[0]) + (cy-hint[1])*(cy-hint[1])
			if !found || d < bestDist {
				best, bestDist, found = r, d, true
			}
		}
		if found {
			return best, true
		}
	}
	return ptRect{}, false
}

// Crop geometry constants, ported from symbol_db_service.py's
// SYM_WIDTH_PT / RIGHT_INSET_PT / MIN_HEIGHT_PT / MAX_HEIGHT_PT / EDGE_PAD_PT.
const (
	symWidthPt   = 70.0
	rightInsetPt = 12.0
	minHeightPt  = 15.0
	maxHeightPt  = 120.0
	edgePadPt    = 20.0
)

// refineCropRect derives the symbol graphic's crop rectangle from its
// description text's rectangle: the graphic sits immediately left of its
// description, bounded on the left by the nearest column grid line (or a
// fixed default width when none is detected), and the row height is padded
// then clamped to [minHeightPt, maxHeightPt].
func refineCropRect(textRect ptRect, lines []gridLine, pw float64) ptRect {
	right := textRect.X0 - rightInsetPt
	left := right - symWidthPt
	if gl, ok := nearestLineLeftOf(lines, textRect.X0); ok {
		left = gl + 2
	}
	if left < 0 {
		left = 0
	}
	if right <= left {
		right = left + symWidthPt
	}
	if right > pw {
		right = pw
	}

	y0 := textRect.Y0 - edgePadPt
	y1 := textRect.Y1 + edgePadPt
	h := y1 - y0
	mid := (y0 + y1) / 2
	if h < minHeightPt {
		y0, y1 = mid-minHeightPt/2, mid+minHeightPt/2
	} else if h > maxHeightPt {
		y0, y1 = mid-maxHeightPt/2, mid+maxHeightPt/2
	}
	if y0 < 0 {
		y0 = 0
	}
	return ptRect{X0: left, Y0: y0, X1: right, Y1: y1}
}

// cropSymbolImages is phase 4: for each validated row, locate its
// description on the page, derive the graphic's crop rectangle, crop it out
// of the hi-res full-page raster, and run the raster post-processing chain.
// A row whose description cannot be located falls back to its VLM-reported
// bbox_pct, padded; a row with neither is returned without an image.
func cropSymbolImages(rows []rawSymbolRow, pdfPage pdf.Page, pw, ph float64, fullPNGPath, symbolsDir string) []Symbol {
	symbols := make([]Symbol, 0, len(rows))

	f, err := os.Open(fullPNGPath)
	if err != nil {
		return symbolsWithoutImages(rows)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return symbolsWithoutImages(rows)
	}
	b := img.Bounds()
	imgW, imgH := b.Dx(), b.Dy()
	if imgW == 0 || imgH == 0 || pw <= 0 || ph <= 0 {
		return symbolsWithoutImages(rows)
	}
	scaleX := float64(imgW) / pw
	scaleY := float64(imgH) / ph

	lines := buildLineIndex(pdfPage, ph)
	gridLines := detectGridLines(img, 1.0/scaleX)

	if err := os.MkdirAll(symbolsDir, 0o755); err != nil {
		return symbolsWithoutImages(rows)
	}

	for i, row := range rows {
		var hint *[2]float64
		if len(row.BBoxPct) == 4 {
			hint = &[2]float64{
				(row.BBoxPct[0] + row.BBoxPct[2]) / 2 * pw,
				(row.BBoxPct[1] + row.BBoxPct[3]) / 2 * ph,
			}
		}

		var crop ptRect
		haveCrop := false
		if textRect, ok := locateText(lines, row.Description, hint); ok {
			crop = refineCropRect(textRect, gridLines, pw)
			haveCrop = true
		} else if len(row.BBoxPct) == 4 {
			crop = ptRect{
				X0: row.BBoxPct[0]*pw - 4,
				Y0: row.BBoxPct[1]*ph - 4,
				X1: row.BBoxPct[2]*pw + 4,
				Y1: row.BBoxPct[3]*ph + 4,
			}
			haveCrop = true
		}

		sym := Symbol{
			Category:    normalizeCategory(row.Category),
			Code:        row.SymbolName,
			Description: row.Description,
		}
		if len(row.BBoxPct) == 4 {
			sym.BBoxPct = &BBoxPct{X0: row.BBoxPct[0], Y0: row.BBoxPct[1], X1: row.BBoxPct[2], Y1: row.BBoxPct[3]}
		}

		if haveCrop {
			px0 := clampInt(int(crop.X0*scaleX), 0, imgW)
			py0 := clampInt(int(crop.Y0*scaleY), 0, imgH)
			px1 := clampInt(int(crop.X1*scaleX), 0, imgW)
			py1 := clampInt(int(crop.Y1*scaleY), 0, imgH)
			if px1 > px0 && py1 > py0 {
				cropped := cropImage(img, px0, py0, px1, py1)
				cropped = whitenGrayBackground(cropped)
				cropped = trimGridBorders(cropped)
				cropped = autoCropToContent(cropped, 4)

				outPath := filepath.Join(symbolsDir, fmt.Sprintf("symbol_%d_%s.png", i+1, strings.ToLower(string(sym.Category))))
				if savePNG(cropped, outPath) {
					sym.ImagePath = outPath
				}
			}
		}

		symbols = append(symbols, sym)
	}

	return symbols
}

func symbolsWithoutImages(rows []rawSymbolRow) []Symbol {
	symbols := make([]Symbol, 0, len(rows))
	for _, row := range rows {
		sym := Symbol{
			Category:    normalizeCategory(row.Category),
			Code:        row.SymbolName,
			Description: row.Description,
		}
		if len(row.BBoxPct) == 4 {
			sym.BBoxPct = &BBoxPct{X0: row.BBoxPct[0], Y0: row.BBoxPct[1], X1: row.BBoxPct[2], Y1: row.BBoxPct[3]}
		}
		symbols = append(symbols, sym)
	}
	return symbols
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
