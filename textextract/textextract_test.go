package textextract

import "testing"

func TestExtractPage_CoverPageEmitsEmptyLists(t *testing.T) {
	pt := ExtractPage(1, []string{"DRAWING LIST", "ABC123 FFW-1 736 MM"})
	if !pt.IsCover {
		t.Fatalf("expected IsCover=true")
	}
	if len(pt.PipePieces) != 0 || len(pt.Welds) != 0 || len(pt.Dimensions) != 0 {
		t.Fatalf("expected all list fields empty on a cover page, got %+v", pt)
	}
}

func TestExtractPage_WeldPartitioning(t *testing.T) {
	pt := ExtractPage(2, []string{"Welds: FFW-12 and SW-3 present"})
	if pt.FieldWeldCount() != 1 || pt.ShopWeldCount() != 1 {
		t.Fatalf("expected 1 field + 1 shop weld, got field=%d shop=%d", pt.FieldWeldCount(), pt.ShopWeldCount())
	}
	if pt.ShopWeldCount()+pt.FieldWeldCount() != len(pt.Welds) {
		t.Fatalf("shop+field must equal total weld count")
	}
}

func TestExtractPage_PipePieceDedup(t *testing.T) {
	pt := ExtractPage(3, []string{"Line has AB1234 twice: AB1234 again"})
	if len(pt.PipePieces) != 1 {
		t.Fatalf("expected dedup to 1 pipe piece, got %v", pt.PipePieces)
	}
}

func TestExtractPage_DimensionExtraction(t *testing.T) {
	pt := ExtractPage(4, []string{"cut length 736 MM at station 1"})
	if len(pt.Dimensions) != 1 || pt.Dimensions[0] != "736 MM" {
		t.Fatalf("expected one dimension '736 MM', got %v", pt.Dimensions)
	}
	v, ok := ParseDimensionMM(pt.Dimensions[0])
	if !ok || v != 736 {
		t.Fatalf("expected 736, got %v ok=%v", v, ok)
	}
}

func TestOrderLines_GroupsByYProximityTopToBottom(t *testing.T) {
	elems := []textElement{
		{X: 0, Y: 10, S: "bottom"},
		{X: 5, Y: 10.5, S: "-still-bottom"},
		{X: 0, Y: 100, S: "top"},
	}
	lines := OrderLines(elems)
	if len(lines) != 2 {
		t.Fatalf("expected 2 visual lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "top" {
		t.Fatalf("expected top line first, got %v", lines)
	}
	if lines[1] != "bottom-still-bottom" {
		t.Fatalf("expected bottom line to merge within Y tolerance, got %q", lines[1])
	}
}
