//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brunobiangulo/pidscan/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := model.Session{ID: "sess-1", Kind: model.KindPipeBOM, OriginalFilename: "drawing.pdf", Status: model.StatusProcessing}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("creating session: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	if got.Kind != model.KindPipeBOM || got.OriginalFilename != "drawing.pdf" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("status: got %q, want %q", got.Status, model.StatusProcessing)
	}
}

func TestUpdateSessionStatusRecordsErrorDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.CreateSession(ctx, model.Session{ID: "sess-2", Kind: model.KindPID, OriginalFilename: "p.pdf", Status: model.StatusProcessing})

	if err := s.UpdateSessionStatus(ctx, "sess-2", model.StatusError, "render failed"); err != nil {
		t.Fatalf("updating status: %v", err)
	}

	got, err := s.GetSession(ctx, "sess-2")
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	if got.Status != model.StatusError || got.ErrorDetail != "render failed" {
		t.Errorf("unexpected session after error update: %+v", got)
	}
}

func TestListSessionsOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateSession(ctx, model.Session{ID: id, Kind: model.KindDXF, OriginalFilename: id + ".dxf", Status: model.StatusProcessing}); err != nil {
			t.Fatalf("creating session %s: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "c" {
		t.Errorf("expected newest session c first, got %q", sessions[0].ID)
	}
}

func TestSaveAndGetSymbolsRoundTripsBBox(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-sym", Kind: model.KindPID, OriginalFilename: "p.pdf", Status: model.StatusProcessing})

	symbols := []model.SymbolEntry{
		{Ordinal: 0, Category: model.CategoryValve, Code: "GV", Description: "GATE VALVE", ImagePath: "symbols/symbol_000.png", BBox: &model.BBox{X0: 0.1, Y0: 0.2, X1: 0.3, Y1: 0.4}},
		{Ordinal: 1, Category: model.CategoryPiping, Description: "PIPE LINE"},
	}
	if err := s.SaveSymbols(ctx, "sess-sym", symbols); err != nil {
		t.Fatalf("saving symbols: %v", err)
	}

	got, err := s.GetSymbols(ctx, "sess-sym")
	if err != nil {
		t.Fatalf("getting symbols: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(got))
	}
	if got[0].BBox == nil || got[0].BBox.X1 != 0.3 {
		t.Errorf("expected bbox to round-trip, got %+v", got[0].BBox)
	}
	if got[1].BBox != nil {
		t.Errorf("expected nil bbox for second symbol, got %+v", got[1].BBox)
	}
}

func TestSaveSymbolsReplacesPreviousSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-replace", Kind: model.KindPID, OriginalFilename: "p.pdf", Status: model.StatusProcessing})

	s.SaveSymbols(ctx, "sess-replace", []model.SymbolEntry{{Ordinal: 0, Category: model.CategoryOther, Description: "OLD"}})
	s.SaveSymbols(ctx, "sess-replace", []model.SymbolEntry{{Ordinal: 0, Category: model.CategoryOther, Description: "NEW"}})

	got, err := s.GetSymbols(ctx, "sess-replace")
	if err != nil {
		t.Fatalf("getting symbols: %v", err)
	}
	if len(got) != 1 || got[0].Description != "NEW" {
		t.Fatalf("expected only the latest symbol set, got %+v", got)
	}
}

func TestSaveAndGetPageBOMRoundTripsFullRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-bom", Kind: model.KindPipeBOM, OriginalFilename: "bom.pdf", Status: model.StatusProcessing})

	rec := model.PageBOMRecord{
		PageNumber:      1,
		DrawingNumber:   "DWG-001",
		PipePieces:      []model.PipePiece{{ID: "A1234-1", Size: "6\"", Provenance: "vlm"}},
		Dimensions:      []model.Dimension{{From: "SW-1", To: "SW-2", LengthMM: 500, Source: "vlm"}},
		WeldCountText:   2,
		WeldCountVLM:    3,
		DrawingAnalysisOK: true,
		TableAnalysisOK:   true,
	}
	if err := s.SavePageBOM(ctx, "sess-bom", rec); err != nil {
		t.Fatalf("saving page bom: %v", err)
	}

	got, err := s.GetPageBOMs(ctx, "sess-bom")
	if err != nil {
		t.Fatalf("getting page boms: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 page record, got %d", len(got))
	}
	if got[0].DrawingNumber != "DWG-001" || len(got[0].PipePieces) != 1 {
		t.Errorf("unexpected round-tripped record: %+v", got[0])
	}
	if got[0].WeldCountCanonical() != 3 {
		t.Errorf("expected canonical weld count 3, got %d", got[0].WeldCountCanonical())
	}
}

func TestSaveAndGetValves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-valve", Kind: model.KindPID, OriginalFilename: "p.pdf", Status: model.StatusProcessing})

	valves := []model.ValveExtract{
		{Tag: "GV-101", Type: model.ValveGate, NominalSize: "6\"", SourceSheet: 1, Provenance: model.ProvenanceRegex},
		{Tag: "BV-201", Type: model.ValveButterfly, NominalSize: "4\"", SourceSheet: 2, Provenance: model.ProvenanceVLM},
	}
	if err := s.SaveValves(ctx, "sess-valve", valves); err != nil {
		t.Fatalf("saving valves: %v", err)
	}

	got, err := s.GetValves(ctx, "sess-valve")
	if err != nil {
		t.Fatalf("getting valves: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 valves, got %d", len(got))
	}
	if got[0].Tag != "GV-101" || got[1].Tag != "BV-201" {
		t.Errorf("unexpected valve ordering: %+v", got)
	}
}

func TestSaveAndGetComparisonRecomputesSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-cmp", Kind: model.KindPipeBOM, OriginalFilename: "bom.pdf", Status: model.StatusProcessing})

	cmp := model.PageComparison{
		PageNumber: 1,
		ComparisonItems: []model.ComparisonItem{
			{BOMLetter: "A", Verdict: model.Match},
			{BOMLetter: "B", Verdict: model.Mismatch},
			{BOMLetter: "C", Verdict: model.NotApplicable},
		},
	}
	if err := s.SaveComparison(ctx, "sess-cmp", cmp); err != nil {
		t.Fatalf("saving comparison: %v", err)
	}

	got, err := s.GetComparisons(ctx, "sess-cmp")
	if err != nil {
		t.Fatalf("getting comparisons: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 page comparison, got %d", len(got))
	}
	if got[0].Summary.Matched != 1 || got[0].Summary.Mismatched != 1 || got[0].Summary.NAItems != 1 {
		t.Errorf("unexpected summary: %+v", got[0].Summary)
	}
	if got[0].Summary.MatchRate != 50.0 {
		t.Errorf("expected match rate 50.0, got %v", got[0].Summary.MatchRate)
	}
}

func TestExecRejectsNonSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, "DELETE FROM sessions")
	if err != ErrNonSelectQuery {
		t.Fatalf("expected ErrNonSelectQuery, got %v", err)
	}
}

func TestExecAllowsSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateSession(ctx, model.Session{ID: "sess-exec", Kind: model.KindPID, OriginalFilename: "p.pdf", Status: model.StatusProcessing})

	rows, err := s.Exec(ctx, "SELECT id FROM sessions WHERE id = 'sess-exec'")
	if err != nil {
		t.Fatalf("expected SELECT to succeed: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("expected one row")
	}
}

func TestSchemaIncludesSessionsTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ddl, err := s.Schema(ctx)
	if err != nil {
		t.Fatalf("reading schema: %v", err)
	}
	if !strings.Contains(ddl, "CREATE TABLE") || !strings.Contains(ddl, "sessions") {
		t.Errorf("expected schema DDL to mention sessions table, got %q", ddl)
	}
}
