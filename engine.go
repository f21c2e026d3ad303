package pidscan

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/pidscan/bom"
	"github.com/brunobiangulo/pidscan/dxfspec"
	"github.com/brunobiangulo/pidscan/legend"
	"github.com/brunobiangulo/pidscan/llm"
	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/pid"
	"github.com/brunobiangulo/pidscan/reconcile"
	"github.com/brunobiangulo/pidscan/render"
	"github.com/brunobiangulo/pidscan/report"
	"github.com/brunobiangulo/pidscan/store"
	"github.com/brunobiangulo/pidscan/textextract"
)

// Engine is pidscan's session-oriented entry point: Upload starts a
// background worker that runs the fixed render -> extract -> VLM analyze
// -> reconcile -> report pipeline for one document, and the remaining
// methods observe or control that worker's progress.
type Engine interface {
	// Upload detects the document kind from filename, creates a session,
	// and starts its background pipeline. It returns as soon as the upload
	// is persisted to disk; processing continues asynchronously.
	Upload(ctx context.Context, src io.Reader, filename string) (string, error)

	// Sessions lists every session, newest first.
	Sessions(ctx context.Context) ([]model.Session, error)

	// Results returns everything persisted for a session so far, whatever
	// its current status.
	Results(ctx context.Context, sessionID string) (SessionResult, error)

	// Symbols returns a P&ID session's harvested legend symbols, optionally
	// filtered by category and a case-insensitive description substring.
	Symbols(ctx context.Context, sessionID, category, search string) ([]model.SymbolEntry, error)

	// Cancel interrupts a session's background pipeline. Already-persisted
	// rows are left intact; the session moves to StatusCancelled.
	Cancel(ctx context.Context, sessionID string) error

	// Chat answers a natural-language question about persisted results by
	// translating it to a read-only SQL query and summarizing the result.
	Chat(ctx context.Context, sessionID, message string) (ChatResponse, error)

	// Close releases the engine's store handle.
	Close() error
}

// SessionResult aggregates one session's persisted state for the results
// and download endpoints.
type SessionResult struct {
	Session     model.Session             `json:"session"`
	Files       []FileEntry               `json:"files"`
	Symbols     []model.SymbolEntry       `json:"symbols,omitempty"`
	Valves      []model.ValveExtract      `json:"valves,omitempty"`
	PageBOMs    []model.PageBOMRecord     `json:"page_boms,omitempty"`
	Comparisons []model.PageComparison    `json:"comparisons,omitempty"`
}

// FileEntry describes one artifact in a session's working directory.
type FileEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ChatResponse is the NL-to-SQL chat surface's answer.
type ChatResponse struct {
	Response string           `json:"response"`
	SQLQuery string           `json:"sql_query,omitempty"`
	Data     []map[string]any `json:"data,omitempty"`
}

type engine struct {
	cfg         Config
	store       *store.Store
	vision      *llm.Client
	sessionRoot string

	cancels sync.Map // sessionID (string) -> context.CancelFunc
}

// New builds a pidscan engine from cfg: it opens the session store, builds
// the shared vision+fallback LLM client, and ensures the session root
// directory exists.
func New(cfg Config) (Engine, error) {
	dbPath := cfg.resolveDBPath()
	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pidscan: opening store: %w", err)
	}

	client, err := llm.NewClient(cfg.Vision, cfg.ChatFallbacks...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("pidscan: building vision client: %w", err)
	}

	root := cfg.SessionRoot
	if root == "" {
		root = "sessions"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		s.Close()
		return nil, fmt.Errorf("pidscan: creating session root: %w", err)
	}

	return &engine{cfg: cfg, store: s, vision: client, sessionRoot: root}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

func (e *engine) renderOptions() render.Options {
	return render.Options{
		MaxPixelExtent: e.cfg.MaxPixelExtent,
		MinDPI:         e.cfg.MinDPI,
		HardCeilingDPI: e.cfg.HardCeilingDPI,
	}
}

// detectKind mirrors the original upload router's filename heuristic: DXF
// by extension, PDF sub-kind by keywords in the filename, anything else
// rejected before a session is even created.
func detectKind(filename string) model.SessionKind {
	lower := strings.ToLower(filename)
	switch filepath.Ext(lower) {
	case ".dxf":
		return model.KindDXF
	case ".pdf":
		switch {
		case strings.Contains(lower, "pid") || strings.Contains(lower, "p&id") || strings.Contains(lower, "valve"):
			return model.KindPID
		case strings.Contains(lower, "bom") || strings.Contains(lower, "pipe"):
			return model.KindPipeBOM
		default:
			return model.KindUnknown
		}
	default:
		return ""
	}
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

func (e *engine) Upload(ctx context.Context, src io.Reader, filename string) (string, error) {
	if filename == "" {
		return "", ErrInvalidUpload
	}
	kind := detectKind(filename)
	if kind == "" {
		return "", ErrUnsupportedKind
	}

	sessionID, err := newSessionID()
	if err != nil {
		return "", fmt.Errorf("pidscan: generating session id: %w", err)
	}

	dir := filepath.Join(e.sessionRoot, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("pidscan: creating session directory: %w", err)
	}

	rawPath := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(rawPath)
	if err != nil {
		return "", fmt.Errorf("pidscan: saving upload: %w", err)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err != nil {
		return "", fmt.Errorf("pidscan: saving upload: %w", err)
	}
	if closeErr != nil {
		return "", fmt.Errorf("pidscan: saving upload: %w", closeErr)
	}
	if n == 0 {
		return "", ErrInvalidUpload
	}

	sess := model.Session{ID: sessionID, Kind: kind, OriginalFilename: filename, Status: model.StatusProcessing}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	e.cancels.Store(sessionID, cancel)

	go e.runSession(sessionCtx, sessionID, kind, rawPath, dir)

	return sessionID, nil
}

// runSession drives the strictly sequential pipeline for one session: each
// stage runs to completion (or fails) before the next starts, matching the
// fixed render -> extract -> VLM analyze -> reconcile -> report order.
func (e *engine) runSession(ctx context.Context, sessionID string, kind model.SessionKind, rawPath, dir string) {
	defer e.cancels.Delete(sessionID)

	slog.Info("pidscan: session started", "session_id", sessionID, "kind", kind)

	var err error
	switch kind {
	case model.KindDXF:
		err = e.runDXF(ctx, sessionID, dir)
	case model.KindPID:
		err = e.runPID(ctx, sessionID, rawPath, dir)
	case model.KindPipeBOM:
		err = e.runBOM(ctx, sessionID, rawPath, dir)
	case model.KindUnknown:
		err = e.runUnknownPDF(ctx, sessionID, rawPath, dir)
	default:
		err = ErrUnsupportedKind
	}

	bg := context.Background()
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			slog.Info("pidscan: session cancelled", "session_id", sessionID)
			e.store.UpdateSessionStatus(bg, sessionID, model.StatusCancelled, "")
			return
		}
		msg := err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		slog.Error("pidscan: session failed", "session_id", sessionID, "error", err)
		e.store.UpdateSessionStatus(bg, sessionID, model.StatusError, msg)
		return
	}

	slog.Info("pidscan: session completed", "session_id", sessionID)
	e.store.UpdateSessionStatus(bg, sessionID, model.StatusCompleted, "")
}

// runDXF records the data-contract stub for a DXF upload. Rendering DXF
// geometry to raster and performing real geometric CAD analysis are out of
// scope (non-goals); this leg only satisfies the session/persistence
// contract so a DXF upload completes cleanly rather than erroring out.
func (e *engine) runDXF(ctx context.Context, sessionID, dir string) error {
	dims := []model.Dimension{}
	if err := writeJSONDump(filepath.Join(dir, "dimensions.json"), dims); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

func (e *engine) runPID(ctx context.Context, sessionID, rawPath, dir string) error {
	renderer, err := render.Open(rawPath, dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageRenderFailure, err)
	}
	defer renderer.Close()

	f, pdfReader, err := pdf.Open(rawPath)
	if err != nil {
		return fmt.Errorf("pidscan: opening pdf text layer: %w", err)
	}
	defer f.Close()

	if err := e.store.UpdateSessionStatus(ctx, sessionID, model.StatusVLMAnalyzing, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	symbolsDir := filepath.Join(dir, "symbols")
	legendOpts := legend.Options{
		Render:      e.renderOptions(),
		VLMMaxTok:   16384,
		SymbolsDir:  symbolsDir,
		FullPNGPath: "legend_page_full.png",
		VLMPNGPath:  "legend_page_vlm.png",
	}

	symbols, err := legend.Harvest(ctx, renderer, pdfReader, 0, e.vision, legendOpts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Legend extraction is non-fatal to the session: a P&ID without a
		// usable legend page still yields valve extraction from the
		// remaining pages (spec §7 LegendExtractionFailure).
		slog.Warn("pidscan: legend harvest failed, continuing without symbols", "session_id", sessionID, "error", err)
		symbols = nil
	}

	entries := make([]model.SymbolEntry, len(symbols))
	for i, s := range symbols {
		entries[i] = s.ToModel(i + 1)
	}
	if err := e.store.SaveSymbols(ctx, sessionID, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "symbols_legend.json"), entries); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	valves, lineSpecs, err := e.extractValvePages(ctx, renderer, pdfReader, 1)
	if err != nil {
		return err
	}

	vlmValves, vlmLineSpecs := e.runPIDVLM(ctx, renderer, legend.ReferenceText(symbols), pidVLMPages(renderer.NumPage()))
	valves = pid.MergeValves(valves, vlmValves)
	lineSpecs = pid.MergeLineSpecs(lineSpecs, vlmLineSpecs)

	if err := e.store.SaveValves(ctx, sessionID, valves); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "valve_data.json"), valves); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "line_specs.json"), lineSpecs); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if len(valves) > 0 {
		if err := report.WriteValveWorkbook(valves, filepath.Join(dir, "valve_list.xlsx")); err != nil {
			slog.Warn("pidscan: valve workbook write failed", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// extractValvePages runs the regex valve and line-spec passes over every
// page from startPage onward, rendering each page to PNG alongside them.
func (e *engine) extractValvePages(ctx context.Context, renderer *render.Renderer, pdfReader *pdf.Reader, startPage int) ([]model.ValveExtract, []dxfspec.LineSpec, error) {
	var valves []model.ValveExtract
	var lineSpecs []dxfspec.LineSpec
	numPages := renderer.NumPage()
	opts := e.renderOptions()
	for i := startPage; i < numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		pageNumber := i + 1
		lines := linesForPage(pdfReader, pageNumber)
		valves = append(valves, pid.ExtractValves(lines, pageNumber)...)
		lineSpecs = append(lineSpecs, pid.ExtractLineSpecs(lines, pageNumber)...)

		filename := fmt.Sprintf("pid_page_%d.png", pageNumber)
		if _, err := renderer.Page(ctx, i, nil, opts, filename); err != nil {
			slog.Warn("pidscan: pid page render failed", "page", pageNumber, "error", err)
		}
	}
	return valves, lineSpecs, nil
}

// pidVLMRenderOptions bounds the high-resolution render fed to the P&ID VLM
// pass, matching the original's adaptive-DPI render_pid_page_for_vlm
// (max_px=6000, dpi clamped to [150, 250]).
func pidVLMRenderOptions() render.Options {
	return render.Options{MaxPixelExtent: 6000, MinDPI: 150, HardCeilingDPI: 250}
}

// pidVLMPages picks the 0-based page indexes the VLM pass analyzes: pages
// 2-3 of the drawing, the pump-room sheets the original service's
// analyze_pid_pages hard-codes, capped to the document's actual page count.
func pidVLMPages(numPages int) []int {
	var pages []int
	for _, i := range []int{1, 2} {
		if i < numPages {
			pages = append(pages, i)
		}
	}
	return pages
}

// runPIDVLM renders each page in pages at VLM resolution and analyzes it
// with pid.AnalyzeVLM, the "optional multi-page VLM analysis" leg of the
// P&ID path run alongside (and merged with) the regex pass. A page that
// fails to render or analyze is skipped rather than aborting the session,
// since this leg is optional: the regex pass alone still yields a usable
// result.
func (e *engine) runPIDVLM(ctx context.Context, renderer *render.Renderer, symbolRef string, pages []int) ([]model.ValveExtract, []dxfspec.LineSpec) {
	opts := pidVLMRenderOptions()
	var valves []model.ValveExtract
	var lineSpecs []dxfspec.LineSpec
	seenValves := make(map[string]bool)
	seenSpecs := make(map[string]bool)

	for _, i := range pages {
		if ctx.Err() != nil {
			return valves, lineSpecs
		}
		pageNumber := i + 1
		filename := fmt.Sprintf("pid_vlm_page_%d.png", pageNumber)
		imgPath, err := renderer.Page(ctx, i, nil, opts, filename)
		if err != nil {
			slog.Warn("pidscan: pid VLM page render failed", "page", pageNumber, "error", err)
			continue
		}

		pv, pl, err := pid.AnalyzeVLM(ctx, e.vision, imgPath, pageNumber, symbolRef, 8192)
		if err != nil {
			slog.Warn("pidscan: pid VLM analysis failed", "page", pageNumber, "error", err)
			continue
		}
		for _, v := range pv {
			if seenValves[v.Tag] {
				continue
			}
			seenValves[v.Tag] = true
			valves = append(valves, v)
		}
		for _, l := range pl {
			key := l.LineNumber
			if key == "" {
				key = l.Raw
			}
			if seenSpecs[key] {
				continue
			}
			seenSpecs[key] = true
			lineSpecs = append(lineSpecs, l)
		}
	}
	return valves, lineSpecs
}

func linesForPage(pdfReader *pdf.Reader, pageNumber int) []string {
	page := pdfReader.Page(pageNumber)
	if page.V.IsNull() {
		return nil
	}
	return textextract.OrderLines(textextract.ElementsFromPage(page))
}

func (e *engine) runBOM(ctx context.Context, sessionID, rawPath, dir string) error {
	renderer, err := render.Open(rawPath, dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageRenderFailure, err)
	}
	defer renderer.Close()

	f, pdfReader, err := pdf.Open(rawPath)
	if err != nil {
		return fmt.Errorf("pidscan: opening pdf text layer: %w", err)
	}
	defer f.Close()

	if err := e.store.UpdateSessionStatus(ctx, sessionID, model.StatusVLMAnalyzing, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	refSymbols := e.referenceSymbols(ctx)

	bomOpts := bom.DefaultOptions()
	bomOpts.FullPage.MaxPixelExtent = e.cfg.MaxPixelExtent
	bomOpts.InterCallDelay = e.cfg.InterCallDelay
	pipeline := bom.NewPipeline(e.vision, renderer, bomOpts)

	e.renderBOMPreviews(ctx, renderer, pdfReader.NumPage())

	pages, comparisons, err := e.processBOMPages(ctx, sessionID, pipeline, pdfReader, refSymbols)
	if err != nil {
		return err
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}

	reportPath := filepath.Join(dir, "pipe_bom_report.xlsx")
	if err := report.WriteWorkbook(*sess, pages, comparisons, reportPath); err != nil {
		slog.Warn("pidscan: bom report write failed", "session_id", sessionID, "error", err)
	}

	if err := e.writeBOMDumps(dir, pages, comparisons); err != nil {
		return err
	}
	return nil
}

// renderBOMPreviews rasterizes every page to a standalone preview PNG ahead
// of the VLM pass, mirroring pipe_bom_service.render_bom_pages. A render
// failure here only drops that page's preview image; it never aborts the
// session, since the VLM/regex passes read the PDF directly and don't
// depend on these files.
func (e *engine) renderBOMPreviews(ctx context.Context, renderer *render.Renderer, numPages int) {
	dpi := render.BulkDPI(numPages)
	opts := render.Options{MaxPixelExtent: e.cfg.MaxPixelExtent, MinDPI: dpi, HardCeilingDPI: dpi}
	for i := 0; i < numPages && i < renderer.NumPage(); i++ {
		if ctx.Err() != nil {
			return
		}
		filename := fmt.Sprintf("bom_page%d.png", i+1)
		if _, err := renderer.Page(ctx, i, nil, opts, filename); err != nil {
			slog.Warn("pidscan: bom preview render failed", "page", i+1, "error", err)
		}
	}
}

// writeBOMDumps persists the four JSON artifacts of a completed BOM pass:
// the raw per-page VLM/regex extraction (written to both pipe_bom_data.json
// and vlm_bom_data.json), its reconciliation comparisons, and a summary of
// the extraction run (spec §6 external file contract,
// grounded on vlm_bom_service.py's json_path/stats_path dumps).
func (e *engine) writeBOMDumps(dir string, pages []model.PageBOMRecord, comparisons []model.PageComparison) error {
	if err := writeJSONDump(filepath.Join(dir, "pipe_bom_data.json"), pages); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "vlm_bom_data.json"), pages); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "bom_comparison.json"), comparisons); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	if err := writeJSONDump(filepath.Join(dir, "vlm_extraction_stats.json"), computeExtractionStats(pages)); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// extractionStats summarizes one BOM session's VLM/regex extraction run,
// grounded on vlm_bom_service.py's _compute_extraction_stats.
type extractionStats struct {
	TotalPages          int            `json:"total_pages"`
	PagesWithData       int            `json:"pages_with_data"`
	DrawingAnalysisOK   int            `json:"drawing_analysis_success"`
	TableAnalysisOK     int            `json:"table_analysis_success"`
	TotalPipePieces     int            `json:"total_pipe_pieces"`
	TotalComponents     int            `json:"total_components"`
	TotalWeldPoints     int            `json:"total_weld_points"`
	TotalBOMItems       int            `json:"total_bom_items"`
	TotalCutLengths     int            `json:"total_cut_lengths"`
	TotalDimensions     int            `json:"total_dimensions"`
	ValveTypes          map[string]int `json:"valve_types"`
	FittingTypes        map[string]int `json:"fitting_types"`
	DistinctLineNumbers int            `json:"distinct_line_numbers"`
}

func computeExtractionStats(pages []model.PageBOMRecord) extractionStats {
	stats := extractionStats{
		TotalPages:   len(pages),
		ValveTypes:   map[string]int{},
		FittingTypes: map[string]int{},
	}
	lineNumbers := map[string]bool{}
	for _, p := range pages {
		if len(p.PipePieces) > 0 || len(p.BOMTable) > 0 {
			stats.PagesWithData++
		}
		if p.DrawingAnalysisOK {
			stats.DrawingAnalysisOK++
		}
		if p.TableAnalysisOK {
			stats.TableAnalysisOK++
		}
		if p.LineNumber != "" {
			lineNumbers[p.LineNumber] = true
		}
		stats.TotalPipePieces += len(p.PipePieces)
		stats.TotalComponents += len(p.Components)
		stats.TotalWeldPoints += len(p.WeldPoints)
		stats.TotalBOMItems += len(p.BOMTable)
		stats.TotalCutLengths += len(p.CutLengths)
		stats.TotalDimensions += len(p.Dimensions)
		for _, c := range p.Components {
			qty := c.Quantity
			if qty == 0 {
				qty = 1
			}
			switch strings.ToLower(c.Type) {
			case "valve":
				stats.ValveTypes[c.Subtype] += qty
			case "fitting":
				stats.FittingTypes[c.Subtype] += qty
			}
		}
	}
	stats.DistinctLineNumbers = len(lineNumbers)
	return stats
}

// processBOMPages runs the VLM extraction + reconciliation pass over every
// page of an already-open BOM pipeline, persisting each page as it
// completes. A single page's VLM failure is recorded on that page's record
// and does not abort the session; a failure to save a page record does,
// while a failure to save a page's comparison is logged and skipped.
func (e *engine) processBOMPages(ctx context.Context, sessionID string, pipeline *bom.Pipeline, pdfReader *pdf.Reader, refSymbols []legend.Symbol) ([]model.PageBOMRecord, []model.PageComparison, error) {
	numPages := pdfReader.NumPage()
	var pages []model.PageBOMRecord
	var comparisons []model.PageComparison

	for i := 0; i < numPages; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		pageNumber := i + 1
		lines := linesForPage(pdfReader, pageNumber)
		text := textextract.ExtractPage(pageNumber, lines)

		rec, err := pipeline.ProcessPage(ctx, i, pageNumber, text, refSymbols)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			slog.Warn("pidscan: bom page analysis failed", "session_id", sessionID, "page", pageNumber, "error", err)
			rec = model.PageBOMRecord{PageNumber: pageNumber, ErrorDetail: err.Error()}
		}
		pages = append(pages, rec)

		if err := e.store.SavePageBOM(ctx, sessionID, rec); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}

		if rec.IsCover || (len(rec.BOMTable) == 0 && len(rec.Components) == 0) {
			continue
		}
		cmp := reconcile.Reconcile(rec)
		comparisons = append(comparisons, cmp)
		if err := e.store.SaveComparison(ctx, sessionID, cmp); err != nil {
			slog.Warn("pidscan: reconciliation persistence skipped", "session_id", sessionID, "page", pageNumber, "error", ErrReconciliationSkipped)
		}
	}
	return pages, comparisons, nil
}

// referenceSymbols resolves the BOM path's legend reference: the most
// recently completed P&ID session's harvested symbols. This is an
// explicit, resolvable lookup rather than a process-wide cache, so a BOM
// upload correctly picks up whichever P&ID session finished most recently
// even across engine restarts (spec §9 open question).
func (e *engine) referenceSymbols(ctx context.Context) []legend.Symbol {
	id, ok, err := e.store.MostRecentSessionID(ctx, model.KindPID)
	if err != nil || !ok {
		return nil
	}
	entries, err := e.store.GetSymbols(ctx, id)
	if err != nil {
		return nil
	}
	out := make([]legend.Symbol, len(entries))
	for i, entry := range entries {
		sym := legend.Symbol{Category: entry.Category, Code: entry.Code, Description: entry.Description, ImagePath: entry.ImagePath}
		if entry.BBox != nil {
			sym.BBoxPct = &legend.BBoxPct{X0: entry.BBox.X0, Y0: entry.BBox.Y0, X1: entry.BBox.X1, Y1: entry.BBox.Y1}
		}
		out[i] = sym
	}
	return out
}

// runUnknownPDF handles a PDF whose filename gave no hint of its kind: it
// attempts both the P&ID valve pass and the BOM pass and keeps whichever
// produced data, mirroring the original router's generic-PDF branch.
func (e *engine) runUnknownPDF(ctx context.Context, sessionID, rawPath, dir string) error {
	renderer, err := render.Open(rawPath, dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPageRenderFailure, err)
	}
	defer renderer.Close()

	f, pdfReader, err := pdf.Open(rawPath)
	if err != nil {
		return fmt.Errorf("pidscan: opening pdf text layer: %w", err)
	}
	defer f.Close()

	valves, lineSpecs, err := e.extractValvePages(ctx, renderer, pdfReader, 0)
	if err != nil {
		return err
	}
	if len(valves) > 0 {
		if err := e.store.SaveValves(ctx, sessionID, valves); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
		if err := writeJSONDump(filepath.Join(dir, "valve_data.json"), valves); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}
	if len(lineSpecs) > 0 {
		if err := writeJSONDump(filepath.Join(dir, "line_specs.json"), lineSpecs); err != nil {
			return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
		}
	}

	refSymbols := e.referenceSymbols(ctx)
	bomOpts := bom.DefaultOptions()
	pipeline := bom.NewPipeline(e.vision, renderer, bomOpts)
	e.renderBOMPreviews(ctx, renderer, pdfReader.NumPage())
	pages, comparisons, err := e.processBOMPages(ctx, sessionID, pipeline, pdfReader, refSymbols)
	if err != nil {
		return err
	}
	hasBOM := false
	for _, p := range pages {
		if len(p.PipePieces) > 0 {
			hasBOM = true
			break
		}
	}
	if hasBOM {
		if err := e.writeBOMDumps(dir, pages, comparisons); err != nil {
			return err
		}
	}
	return nil
}

func writeJSONDump(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (e *engine) Sessions(ctx context.Context) ([]model.Session, error) {
	return e.store.ListSessions(ctx)
}

func (e *engine) Results(ctx context.Context, sessionID string) (SessionResult, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	result := SessionResult{Session: *sess}

	dir := filepath.Join(e.sessionRoot, sessionID)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, de := range entries {
			if de.IsDir() {
				continue
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			result.Files = append(result.Files, FileEntry{Name: de.Name(), Size: info.Size()})
		}
	}

	switch sess.Kind {
	case model.KindPID:
		result.Symbols, _ = e.store.GetSymbols(ctx, sessionID)
		result.Valves, _ = e.store.GetValves(ctx, sessionID)
	case model.KindPipeBOM, model.KindUnknown:
		result.PageBOMs, _ = e.store.GetPageBOMs(ctx, sessionID)
		result.Comparisons, _ = e.store.GetComparisons(ctx, sessionID)
		result.Valves, _ = e.store.GetValves(ctx, sessionID)
	}

	return result, nil
}

func (e *engine) Symbols(ctx context.Context, sessionID, category, search string) ([]model.SymbolEntry, error) {
	entries, err := e.store.GetSymbols(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	if category == "" && search == "" {
		return entries, nil
	}
	search = strings.ToLower(search)
	filtered := entries[:0:0]
	for _, s := range entries {
		if category != "" && string(s.Category) != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(s.Description), search) {
			continue
		}
		filtered = append(filtered, s)
	}
	return filtered, nil
}

func (e *engine) Cancel(ctx context.Context, sessionID string) error {
	v, ok := e.cancels.Load(sessionID)
	if !ok {
		if _, err := e.store.GetSession(ctx, sessionID); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionNotFound, err)
		}
		return nil // already finished; cancelling is a no-op
	}
	cancel := v.(context.CancelFunc)
	cancel()
	return nil
}

// sqlFenceRe extracts a fenced ```sql ... ``` block from a chat model's
// response, mirroring the original chatbot service's regex.
var sqlFenceRe = regexp.MustCompile("(?s)```sql\\s*(.*?)\\s*```")

const chatSystemPromptTemplate = `You are a data assistant for a P&ID/BOM extraction database.
Given the user's question and the schema below, respond with exactly one
read-only SQL query wrapped in a single fenced block, like:

` + "```sql\nSELECT ...\n```" + `

Only SELECT statements are permitted. Use only the tables and columns shown.

Schema:
%s`

func (e *engine) Chat(ctx context.Context, sessionID, message string) (ChatResponse, error) {
	if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	schema, err := e.store.Schema(ctx)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("pidscan: reading schema: %w", err)
	}

	system := fmt.Sprintf(chatSystemPromptTemplate, schema)
	sqlResp := e.vision.TextChat(ctx, system, message)

	m := sqlFenceRe.FindStringSubmatch(sqlResp)
	if m == nil {
		return ChatResponse{Response: sqlResp}, nil
	}
	query := strings.TrimSpace(m[1])

	rows, err := e.store.Exec(ctx, query)
	if err != nil {
		if errors.Is(err, store.ErrNonSelectQuery) {
			return ChatResponse{}, fmt.Errorf("%w", ErrNonSelectQuery)
		}
		return ChatResponse{}, fmt.Errorf("pidscan: running chat query: %w", err)
	}
	defer rows.Close()

	data, err := scanRows(rows)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("pidscan: scanning chat query results: %w", err)
	}

	const maxSummaryRows = 50
	summaryData := data
	if len(summaryData) > maxSummaryRows {
		summaryData = summaryData[:maxSummaryRows]
	}
	payload, _ := json.Marshal(summaryData)
	summaryPrompt := fmt.Sprintf("Question: %s\nQuery result (JSON, up to %d rows): %s\nSummarize the answer in plain language.",
		message, maxSummaryRows, string(payload))
	response := e.vision.TextChat(ctx, "You summarize SQL query results for a non-technical user.", summaryPrompt)

	const maxReturnedRows = 100
	if len(data) > maxReturnedRows {
		data = data[:maxReturnedRows]
	}

	return ChatResponse{Response: response, SQLQuery: query, Data: data}, nil
}

func scanRows(rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
