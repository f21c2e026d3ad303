package bom

import (
	"testing"

	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/textextract"
)

func TestMergeTextAndVLMAppendsMissingPipePiecesTagged(t *testing.T) {
	rec := model.PageBOMRecord{
		PipePieces: []model.PipePiece{{ID: "A1234-1", Provenance: "vlm"}},
	}
	text := textextract.PageText{PipePieces: []string{"A1234-1", "B5678-2"}}

	mergeTextAndVLM(&rec, text)

	if len(rec.PipePieces) != 2 {
		t.Fatalf("expected 2 pipe pieces after merge, got %d: %+v", len(rec.PipePieces), rec.PipePieces)
	}
	if rec.PipePieces[1].ID != "B5678-2" || rec.PipePieces[1].Provenance != "text_extraction" {
		t.Fatalf("expected appended piece tagged text_extraction, got %+v", rec.PipePieces[1])
	}
}

func TestMergeTextAndVLMIsIdempotent(t *testing.T) {
	rec := model.PageBOMRecord{}
	text := textextract.PageText{PipePieces: []string{"A1111-1"}, Welds: []textextract.Weld{{ID: "SW-1", Kind: textextract.ShopWeld}}}

	mergeTextAndVLM(&rec, text)
	first := append([]model.PipePiece(nil), rec.PipePieces...)
	mergeTextAndVLM(&rec, text)

	if len(rec.PipePieces) != len(first) {
		t.Fatalf("expected merge to be idempotent, got %d then %d pieces", len(first), len(rec.PipePieces))
	}
}

func TestMergeTextAndVLMWeldCountCanonicalIsMax(t *testing.T) {
	rec := model.PageBOMRecord{WeldCountVLM: 3}
	text := textextract.PageText{Welds: []textextract.Weld{{ID: "SW-1"}, {ID: "SW-2"}}}

	mergeTextAndVLM(&rec, text)

	if rec.WeldCountText != 2 {
		t.Fatalf("expected WeldCountText=2, got %d", rec.WeldCountText)
	}
	if got := rec.WeldCountCanonical(); got != 3 {
		t.Fatalf("expected canonical weld count to be the max (3), got %d", got)
	}
}

func TestMergeTextAndVLMAdoptsTextDimensionsOnlyWhenVLMHasNone(t *testing.T) {
	rec := model.PageBOMRecord{Dimensions: []model.Dimension{{From: "SW-1", To: "SW-2", LengthMM: 500, Source: "vlm"}}}
	text := textextract.PageText{Dimensions: []string{"736 MM"}}

	mergeTextAndVLM(&rec, text)

	if len(rec.Dimensions) != 1 {
		t.Fatalf("expected VLM dimensions to be kept as-is, got %+v", rec.Dimensions)
	}

	rec2 := model.PageBOMRecord{}
	mergeTextAndVLM(&rec2, text)
	if len(rec2.Dimensions) != 1 || rec2.Dimensions[0].LengthMM != 736 {
		t.Fatalf("expected text-derived dimension 736mm adopted, got %+v", rec2.Dimensions)
	}
}
