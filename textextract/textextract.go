// Package textextract parses a PDF page's text layer for pipe-piece IDs,
// weld markers, dimension values, and revision notes, and detects cover or
// index pages (spec §4.3 text pass / §8 boundary behavior, C2).
package textextract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Regexes kept exactly as the original service defines them (spec §9 Open
// Question #4: the pipe-piece pattern overmatches drawing-number fragments
// and is left as specified rather than tightened).
var (
	pipePieceRe = regexp.MustCompile(`^[A-Z]{1,3}\d{3,5}(?:-\d+)?[A-Z]?$`)
	weldRe      = regexp.MustCompile(`\b(FFW|SW)[-\s]?\d+\b`)
	dimensionRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*MM\b`)
	revisionRe  = regexp.MustCompile(`\bREV[-\s]?[A-Z0-9]+\b`)

	// leadingExclusionRe filters obvious non-pipe-piece matches that share
	// the pipe-piece pattern's shape (drawing/revision/page/iso labels).
	leadingExclusionRe = regexp.MustCompile(`^(REV|DWG|ISO|PAGE)`)
)

var coverKeywords = []string{"INDEX", "TABLE OF CONTENTS", "목차", "COVER", "DRAWING LIST"}

// Weld partitions by id prefix: "FFW" is a field fit weld, everything else
// (including bare "SW") is a shop weld.
type WeldKind int

const (
	ShopWeld WeldKind = iota
	FieldFitWeld
)

// Weld is one weld marker found on a page.
type Weld struct {
	ID   string
	Kind WeldKind
}

// PageText is the text-extraction result for one page.
type PageText struct {
	PageNumber int
	IsCover    bool
	PipePieces []string
	Welds      []Weld
	Dimensions []string
	Revisions  []string
}

// ExtractPage scans ordered text lines for pipe pieces, welds, dimensions,
// and revision notes, and flags cover/index pages. lines must already be in
// top-to-bottom reading order (see OrderLines).
func ExtractPage(pageNumber int, lines []string) PageText {
	pt := PageText{PageNumber: pageNumber}

	joined := strings.Join(lines, "\n")
	upper := strings.ToUpper(joined)
	for _, kw := range coverKeywords {
		if strings.Contains(upper, kw) {
			pt.IsCover = true
			break
		}
	}
	if pt.IsCover {
		// Spec §8: a cover/index page emits a record with all list fields
		// empty, regardless of what else superficially matches.
		return pt
	}

	seenPiece := make(map[string]bool)
	for _, line := range lines {
		for _, tok := range strings.Fields(line) {
			tok = strings.Trim(tok, ".,;:()[]")
			if pipePieceRe.MatchString(tok) && !leadingExclusionRe.MatchString(tok) {
				if !seenPiece[tok] {
					seenPiece[tok] = true
					pt.PipePieces = append(pt.PipePieces, tok)
				}
			}
		}
	}

	for _, m := range weldRe.FindAllString(joined, -1) {
		kind := ShopWeld
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(m)), "FFW") {
			kind = FieldFitWeld
		}
		pt.Welds = append(pt.Welds, Weld{ID: m, Kind: kind})
	}

	pt.Dimensions = dimensionRe.FindAllString(joined, -1)
	pt.Revisions = revisionRe.FindAllString(joined, -1)

	return pt
}

// ShopWeldCount and FieldWeldCount partition Welds by kind, satisfying the
// invariant shop_weld_count + field_weld_count == total_weld_count (spec §8).
func (pt PageText) ShopWeldCount() int {
	n := 0
	for _, w := range pt.Welds {
		if w.Kind == ShopWeld {
			n++
		}
	}
	return n
}

func (pt PageText) FieldWeldCount() int {
	n := 0
	for _, w := range pt.Welds {
		if w.Kind == FieldFitWeld {
			n++
		}
	}
	return n
}

// textElement is one positioned glyph run from a PDF content stream.
type textElement struct {
	X, Y float64
	S    string
}

// lineTolerance groups consecutive text elements into a visual line when
// their Y coordinates differ by no more than this amount, matching the
// teacher's extractPageTextOrdered grouping threshold.
const lineTolerance = 3.0

// OrderLines groups a page's raw positioned text runs into visual lines by
// Y-proximity and returns them top-to-bottom, preserving each line's
// content-stream order (some PDFs use negative text matrices, so sorting by
// X within a line would garble it).
func OrderLines(elems []textElement) []string {
	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range elems {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := strings.TrimSpace(l.buf.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ElementsFromPage converts a ledongthuc/pdf page's content-stream text
// runs into the textElement shape OrderLines consumes.
func ElementsFromPage(page pdf.Page) []textElement {
	content := page.Content()
	elems := make([]textElement, 0, len(content.Text))
	for _, t := range content.Text {
		elems = append(elems, textElement{X: t.X, Y: t.Y, S: t.S})
	}
	return elems
}

// ParseDimensionMM extracts the numeric millimetre value from a dimension
// token like "736 MM". Returns false if the token doesn't parse.
func ParseDimensionMM(tok string) (float64, bool) {
	fields := strings.Fields(tok)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
