package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/pidscan/model"
)

func TestWriteWorkbookProducesFile(t *testing.T) {
	session := model.Session{ID: "sess1", Kind: model.KindPipeBOM, OriginalFilename: "test.pdf"}
	pages := []model.PageBOMRecord{
		{
			PageNumber:    2,
			DrawingNumber: "DWG-001",
			LineNumber:    "9103",
			PipePieces:    []model.PipePiece{{ID: "9103-1"}},
			WeldPoints:    []model.WeldPoint{{ID: "W1", Kind: model.ShopWeld}},
			BOMTable: []model.BOMRow{
				{LetterCode: "A", Quantity: "2", Size: "10\"", Description: "GATE VALVE", Material: "CS"},
			},
		},
	}
	comps := []model.PageComparison{
		{
			PageNumber: 2,
			ComparisonItems: []model.ComparisonItem{
				{BOMLetter: "A", DrawingComponent: "valve:gate", Verdict: model.Match},
			},
			Summary: model.PageComparisonSummary{ComparableItems: 1, Matched: 1, MatchRate: 100},
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "report.xlsx")
	if err := WriteWorkbook(session, pages, comps, path); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty workbook file")
	}
}

func TestWriteWorkbookSkipsCoverPages(t *testing.T) {
	session := model.Session{ID: "sess2", Kind: model.KindPipeBOM}
	pages := []model.PageBOMRecord{
		{PageNumber: 1, IsCover: true},
		{PageNumber: 2, DrawingNumber: "DWG-002"},
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "report.xlsx")
	if err := WriteWorkbook(session, pages, nil, path); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}
}

func TestWriteValveWorkbook(t *testing.T) {
	valves := []model.ValveExtract{
		{Tag: "CSW9103A", Type: model.ValveButterfly, Subtype: "BUTTERFLY VALVE", NominalSize: "10\"", SourceSheet: 3, Provenance: model.ProvenanceRegex},
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "valves.xlsx")
	if err := WriteValveWorkbook(valves, path); err != nil {
		t.Fatalf("WriteValveWorkbook: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty valve workbook, stat err=%v", err)
	}
}
