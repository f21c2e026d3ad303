package reconcile

import (
	"testing"

	"github.com/brunobiangulo/pidscan/model"
)

// Seed scenario 1: BOM letter-code triage — metres-of-pipe quantity is N/A.
func TestReconcile_LengthUnitIsNotApplicable(t *testing.T) {
	page := model.PageBOMRecord{
		BOMTable: []model.BOMRow{
			{LetterCode: "A", Quantity: "9.5 M", Description: "PIPE SMLS ASME B36.19M", Size: `6"`},
		},
		Components: []model.Component{
			{Type: "pipe", Subtype: "pipe", Quantity: 1},
		},
	}
	cmp := Reconcile(page)
	// The length-unit row does not consume the drawing's pipe key, so the
	// pipe component is also reported as DRAWING_ONLY.
	if len(cmp.ComparisonItems) != 2 {
		t.Fatalf("expected the N/A row plus a DRAWING_ONLY pipe item, got %d", len(cmp.ComparisonItems))
	}
	it := cmp.ComparisonItems[0]
	if it.Verdict != model.NotApplicable {
		t.Fatalf("expected N/A verdict, got %v", it.Verdict)
	}
	if it.Notes == "" {
		t.Fatalf("expected a length-unit note")
	}
	if cmp.ComparisonItems[1].Verdict != model.DrawingOnly {
		t.Fatalf("expected DRAWING_ONLY for the pipe component, got %v", cmp.ComparisonItems[1].Verdict)
	}
}

// Seed scenario 2: exact match.
func TestReconcile_ExactMatch(t *testing.T) {
	page := model.PageBOMRecord{
		BOMTable: []model.BOMRow{
			{LetterCode: "J", Description: "ELBOW 90 LR", Quantity: "4", Size: `6"`},
		},
		Components: []model.Component{
			{Type: "fitting", Subtype: "elbow_90_lr", Quantity: 4},
		},
	}
	cmp := Reconcile(page)
	it := cmp.ComparisonItems[0]
	if it.Verdict != model.Match || it.QuantityDiff != 0 {
		t.Fatalf("expected MATCH diff=0, got %v diff=%d", it.Verdict, it.QuantityDiff)
	}
}

// Seed scenario 3: mismatch.
func TestReconcile_Mismatch(t *testing.T) {
	page := model.PageBOMRecord{
		BOMTable: []model.BOMRow{
			{LetterCode: "F", Description: "WN FLANGE", Quantity: "2"},
		},
		Components: []model.Component{
			{Type: "flange", Subtype: "wn_flange", Quantity: 3},
		},
	}
	cmp := Reconcile(page)
	it := cmp.ComparisonItems[0]
	if it.Verdict != model.Mismatch || it.QuantityDiff != 1 {
		t.Fatalf("expected MISMATCH diff=+1, got %v diff=%d", it.Verdict, it.QuantityDiff)
	}
}

// Seed scenario 6: drawing-only detection.
func TestReconcile_DrawingOnlyDetection(t *testing.T) {
	page := model.PageBOMRecord{
		Components: []model.Component{
			{Type: "fitting", Subtype: "tee", Quantity: 3},
		},
	}
	cmp := Reconcile(page)
	if len(cmp.ComparisonItems) != 1 {
		t.Fatalf("expected 1 comparison item, got %d", len(cmp.ComparisonItems))
	}
	it := cmp.ComparisonItems[0]
	if it.Verdict != model.DrawingOnly || it.DrawingComponent != "fitting:tee" || it.DrawingQuantity != 3 {
		t.Fatalf("unexpected drawing-only item: %+v", it)
	}
}

func TestReconcile_SupportAndInstrumentNeverBecomeDrawingOnly(t *testing.T) {
	page := model.PageBOMRecord{
		Components: []model.Component{
			{Type: "support", Subtype: "clamp", Quantity: 5},
			{Type: "instrument", Subtype: "gauge", Quantity: 2},
		},
	}
	cmp := Reconcile(page)
	if len(cmp.ComparisonItems) != 0 {
		t.Fatalf("expected no comparison items for support/instrument-only page, got %+v", cmp.ComparisonItems)
	}
}

// Invariant: verdict bucket counts sum to the item count.
func TestReconcile_VerdictCountsSumToItemCount(t *testing.T) {
	page := model.PageBOMRecord{
		BOMTable: []model.BOMRow{
			{LetterCode: "J", Description: "ELBOW 90 LR", Quantity: "4"},
			{LetterCode: "F", Description: "WN FLANGE", Quantity: "2"},
			{LetterCode: "Z", Description: "GASKET SPIRAL WOUND", Quantity: "10"},
			{LetterCode: "C", Description: "TEE EQUAL", Quantity: "1"},
		},
		Components: []model.Component{
			{Type: "fitting", Subtype: "elbow_90_lr", Quantity: 4},
			{Type: "flange", Subtype: "wn_flange", Quantity: 3},
			{Type: "fitting", Subtype: "reducing_tee", Quantity: 7},
		},
	}
	cmp := Reconcile(page)
	s := cmp.Summary
	total := s.Matched + s.Mismatched + s.BOMOnly + s.DrawingOnly + s.NAItems
	if total != len(cmp.ComparisonItems) {
		t.Fatalf("verdict bucket sum %d != item count %d", total, len(cmp.ComparisonItems))
	}
	if s.ComparableItems != s.Matched+s.Mismatched+s.BOMOnly+s.DrawingOnly {
		t.Fatalf("comparable items must equal match+mismatch+bom_only+drawing_only")
	}
}

func TestReconcile_MatchRateZeroWhenNoComparableItems(t *testing.T) {
	page := model.PageBOMRecord{
		BOMTable: []model.BOMRow{
			{LetterCode: "Z", Description: "GASKET SPIRAL WOUND", Quantity: "10"},
		},
	}
	cmp := Reconcile(page)
	if cmp.Summary.MatchRate != 0 {
		t.Fatalf("expected match rate 0 when comparable=0, got %v", cmp.Summary.MatchRate)
	}
}
