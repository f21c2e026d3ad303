// Package render rasterizes PDF pages to PNG files at an adaptive DPI
// (spec §4.1, C1), using go-fitz's MuPDF bindings since the pack's native
// PDF library (ledongthuc/pdf) exposes only text and embedded image
// XObjects, not a page-to-bitmap renderer.
package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// Rect is a sub-rectangle of a page in PDF points, origin top-left.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) width() float64  { return r.X1 - r.X0 }
func (r Rect) height() float64 { return r.Y1 - r.Y0 }

// Options bounds the resolution chosen for a single render call.
type Options struct {
	MaxPixelExtent int     // hard cap on the longer raster dimension
	MinDPI         float64
	HardCeilingDPI float64
}

// Renderer wraps one open PDF document. Callers should open one Renderer
// per file per session-worker run and Close it when done; every Page call
// releases its decoded image before returning, so no raster is held across
// calls.
type Renderer struct {
	doc     *fitz.Document
	outDir  string
	pagePts []pointSize
}

type pointSize struct{ w, h float64 }

// Open opens path for rendering, writing rasters into outDir.
func Open(path, outDir string) (*Renderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("render: opening %s: %w", path, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		doc.Close()
		return nil, fmt.Errorf("render: creating output dir: %w", err)
	}
	r := &Renderer{doc: doc, outDir: outDir}
	n := doc.NumPage()
	r.pagePts = make([]pointSize, n)
	for i := 0; i < n; i++ {
		bounds, err := doc.Bound(i)
		if err == nil {
			r.pagePts[i] = pointSize{w: float64(bounds.Dx()), h: float64(bounds.Dy())}
		}
	}
	return r, nil
}

// Close releases the underlying document handle.
func (r *Renderer) Close() error {
	return r.doc.Close()
}

// PageSize returns a page's point-dimensions as recorded at Open time.
func (r *Renderer) PageSize(page int) (w, h float64, ok bool) {
	if page < 0 || page >= len(r.pagePts) {
		return 0, 0, false
	}
	p := r.pagePts[page]
	return p.w, p.h, true
}

// NumPage returns the page count of the open document.
func (r *Renderer) NumPage() int {
	return r.doc.NumPage()
}

// dpiFor derives the render resolution for a page (or clip) of the given
// point-dimensions: dpi = clamp(minDPI, floor(maxPixelExtent/maxDimPt*72), hardCeiling).
func dpiFor(maxDimPt float64, opts Options) float64 {
	if maxDimPt <= 0 {
		return opts.MinDPI
	}
	raw := math.Floor(float64(opts.MaxPixelExtent) / maxDimPt * 72.0)
	if raw < opts.MinDPI {
		return opts.MinDPI
	}
	if raw > opts.HardCeilingDPI {
		return opts.HardCeilingDPI
	}
	return raw
}

// BulkDPI selects a fixed DPI for a multi-page bulk render run, adaptive on
// total page count so the full set stays within a memory budget (spec §4.1).
func BulkDPI(pageCount int) float64 {
	switch {
	case pageCount <= 10:
		return 200
	case pageCount <= 30:
		return 150
	default:
		return 120
	}
}

// subImager is satisfied by the concrete image types go-fitz returns
// (*image.RGBA / *image.NRGBA), which all support SubImage for pixel-space
// cropping without re-decoding.
type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropToRect maps a PDF-point clip rectangle to pixel space at the given
// dpi and crops img to it via SubImage. fullPts is the page's full
// point-dimensions, used to clamp the clip to the page bounds.
func cropToRect(img image.Image, fullPts pointSize, clip *Rect, dpi float64) image.Image {
	scale := dpi / 72.0
	x0 := int(clip.X0 * scale)
	y0 := int(clip.Y0 * scale)
	x1 := int(clip.X1 * scale)
	y1 := int(clip.Y1 * scale)

	b := img.Bounds()
	if x0 < b.Min.X {
		x0 = b.Min.X
	}
	if y0 < b.Min.Y {
		y0 = b.Min.Y
	}
	if x1 > b.Max.X {
		x1 = b.Max.X
	}
	if y1 > b.Max.Y {
		y1 = b.Max.Y
	}
	if x1 <= x0 || y1 <= y0 {
		return img
	}

	si, ok := img.(subImager)
	if !ok {
		return img
	}
	return si.SubImage(image.Rect(x0, y0, x1, y1))
}

// Page rasterizes one page, optionally clipped to a sub-rectangle, at an
// adaptively derived DPI, and writes it to a PNG under outDir. It returns
// the written file's path. When clip is non-nil the DPI is computed
// independently against the clip's own (smaller) point-dimensions, yielding
// a higher resolution than a full-page render would.
func (r *Renderer) Page(ctx context.Context, page int, clip *Rect, opts Options, filename string) (string, error) {
	if page < 0 || page >= len(r.pagePts) {
		return "", fmt.Errorf("render: page %d out of range (0..%d)", page, len(r.pagePts)-1)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	full := r.pagePts[page]
	maxDim := math.Max(full.w, full.h)
	dpi := dpiFor(maxDim, opts)

	decoded, err := r.doc.ImageDPI(page, dpi)
	if err != nil {
		return "", fmt.Errorf("render: rasterizing page %d: %w", page, err)
	}

	var out image.Image = decoded
	if clip != nil {
		cw, ch := clip.width(), clip.height()
		clipDPI := dpiFor(math.Max(cw, ch), opts)
		if clipDPI > dpi {
			// Re-render at the clip's higher DPI, then crop in pixel space.
			hi, err := r.doc.ImageDPI(page, clipDPI)
			if err != nil {
				return "", fmt.Errorf("render: rasterizing clip on page %d: %w", page, err)
			}
			out = cropToRect(hi, full, clip, clipDPI)
		} else {
			out = cropToRect(decoded, full, clip, dpi)
		}
	}

	if w, h := out.Bounds().Dx(), out.Bounds().Dy(); w == 0 || h == 0 {
		return "", fmt.Errorf("render: page %d produced an empty raster", page)
	}

	path := filepath.Join(r.outDir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("render: creating %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, out); err != nil {
		return "", fmt.Errorf("render: encoding %s: %w", path, err)
	}
	return path, nil
}
