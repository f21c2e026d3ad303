package bom

import (
	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/textextract"
)

// mergeTextAndVLM reconciles the page's text-layer extraction into a VLM
// analysis record: pipe pieces the VLM missed are appended and tagged
// "text_extraction", both weld counts are retained with the canonical count
// taken as their max (model.PageBOMRecord.WeldCountCanonical), and
// text-derived dimensions are adopted only when the VLM pass produced none
// (spec §4.3, ported from _merge_text_and_vlm).
func mergeTextAndVLM(rec *model.PageBOMRecord, text textextract.PageText) {
	seen := make(map[string]bool, len(rec.PipePieces))
	for _, pp := range rec.PipePieces {
		seen[pp.ID] = true
	}
	for _, id := range text.PipePieces {
		if seen[id] {
			continue
		}
		seen[id] = true
		rec.PipePieces = append(rec.PipePieces, model.PipePiece{ID: id, Provenance: "text_extraction"})
	}

	rec.WeldCountText = len(text.Welds)
	if len(rec.WeldPoints) == 0 {
		for _, w := range text.Welds {
			kind := model.ShopWeld
			if w.Kind == textextract.FieldFitWeld {
				kind = model.FieldFitWeld
			}
			rec.WeldPoints = append(rec.WeldPoints, model.WeldPoint{ID: w.ID, Kind: kind})
		}
	}

	if len(rec.Dimensions) == 0 {
		for _, tok := range text.Dimensions {
			v, ok := textextract.ParseDimensionMM(tok)
			if !ok {
				continue
			}
			rec.Dimensions = append(rec.Dimensions, model.Dimension{LengthMM: v, Source: "text"})
		}
	}
}
