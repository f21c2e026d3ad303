package legend

import (
	"image"
	"image/color"
	"testing"

	"github.com/brunobiangulo/pidscan/model"
)

func TestValidateAndCleanFiltersGarbageAndDedupes(t *testing.T) {
	rows := []rawSymbolRow{
		{Category: "piping", SymbolName: "TS", Description: "TEMPORARY STRAINER"},
		{Category: "PIPING", SymbolName: "", Description: "A"},       // too short
		{Category: "PIPING", SymbolName: "", Description: "SYMBOL"},  // garbage header
		{Category: "piping", SymbolName: "ts", Description: "temporary strainer"}, // dup, case-folded
		{Category: "valve", SymbolName: "GV", Description: "GATE VALVE"},
	}
	out := validateAndClean(rows)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d: %+v", len(out), out)
	}
	if out[0].Description != "TEMPORARY STRAINER" || out[1].Description != "GATE VALVE" {
		t.Fatalf("unexpected survivors: %+v", out)
	}
	if model.SymbolCategory(out[0].Category) != model.CategoryPiping {
		t.Fatalf("expected category normalized to PIPING, got %q", out[0].Category)
	}
}

func TestNormalizeCategoryFallsBackToOther(t *testing.T) {
	if got := normalizeCategory("actuated valve"); got != model.CategoryActuatedValve {
		t.Fatalf("expected ACTUATED_VALVE, got %q", got)
	}
	if got := normalizeCategory("nonsense"); got != model.CategoryOther {
		t.Fatalf("expected OTHER fallback, got %q", got)
	}
}

func TestReferenceTextGroupsByCategory(t *testing.T) {
	symbols := []Symbol{
		{Category: model.CategoryValve, Code: "GV", Description: "GATE VALVE"},
		{Category: model.CategoryPiping, Description: "TEMPORARY STRAINER"},
	}
	text := ReferenceText(symbols)
	if text == "" {
		t.Fatal("expected non-empty reference text")
	}
}

func solidImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestWhitenGrayBackgroundNoOpOnExtremes(t *testing.T) {
	white := solidImage(40, 40, 255)
	if out := whitenGrayBackground(white); out != image.Image(white) {
		t.Fatal("expected pure white image to pass through unchanged")
	}
	black := solidImage(40, 40, 0)
	if out := whitenGrayBackground(black); out != image.Image(black) {
		t.Fatal("expected pure black image to pass through unchanged")
	}
}

func TestWhitenGrayBackgroundWhitensUniformGrayBand(t *testing.T) {
	gray := solidImage(40, 40, 210)
	out := whitenGrayBackground(gray)
	b := out.Bounds()
	r, g, bch, _ := out.At(b.Min.X+5, b.Min.Y+5).RGBA()
	if r>>8 != 255 || g>>8 != 255 || bch>>8 != 255 {
		t.Fatalf("expected uniform gray background to whiten, got (%d,%d,%d)", r>>8, g>>8, bch>>8)
	}
}

func TestTrimGridBordersNeverExceedsOneThirdSpan(t *testing.T) {
	img := solidImage(90, 90, 0) // all-dark: every edge scan would "find" a line
	out := trimGridBorders(img)
	b := out.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 30 || h < 30 {
		t.Fatalf("trim removed more than the 1/3-span safeguard allows: got %dx%d from 90x90", w, h)
	}
}

func TestSearchCandidatesShortensProgressively(t *testing.T) {
	desc := "DOUBLE BLOCK AND BLEED VALVE WITH VENT CONNECTION ASSEMBLY"
	cands := searchCandidates(desc)
	if len(cands) == 0 {
		t.Fatal("expected at least one search candidate")
	}
	if cands[0] != desc {
		t.Fatalf("expected full description as first candidate, got %q", cands[0])
	}
}

func TestIsGarbageMatchesGridLabelsAndHeaders(t *testing.T) {
	cases := []string{"A", "SYMBOL", "DESCRIPTION", "SHIP NO", "PIPING SYMBOLS", ""}
	for _, c := range cases {
		if !isGarbage(c) {
			t.Errorf("expected %q to be classified as garbage", c)
		}
	}
	if isGarbage("GATE VALVE") {
		t.Error("did not expect a real description to be classified as garbage")
	}
}
