// Package bom runs the two-pass VLM extraction over one isometric BOM page
// (drawing pass + table-crop pass), reconciles it against the page's text
// layer, and produces a model.PageBOMRecord (spec §4.3, C6), grounded
// line-for-line on original_source/vlm_bom_service.py.
package bom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brunobiangulo/pidscan/legend"
	"github.com/brunobiangulo/pidscan/llm"
	"github.com/brunobiangulo/pidscan/jsonrecover"
	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/render"
	"github.com/brunobiangulo/pidscan/textextract"
)

// Options bounds rendering resolution and pacing for both VLM passes.
type Options struct {
	FullPage        render.Options // full-page render, spec §4.3: clamp(120..250)
	TableCrop       render.Options // table-crop render, spec §4.3: clamp(150..300)
	TableCropXRatio float64        // fraction of page width kept, from the right edge
	VLMMaxTok       int
	InterCallDelay  time.Duration // minimum spacing between VLM calls
}

// DefaultOptions matches the original service's render_page_for_vlm
// constants.
func DefaultOptions() Options {
	return Options{
		FullPage:        render.Options{MaxPixelExtent: 1600, MinDPI: 120, HardCeilingDPI: 250},
		TableCrop:       render.Options{MaxPixelExtent: 1600, MinDPI: 150, HardCeilingDPI: 300},
		TableCropXRatio: 0.70,
		VLMMaxTok:       8192,
		InterCallDelay:  500 * time.Millisecond,
	}
}

// Pipeline processes isometric BOM pages one at a time, enforcing a minimum
// spacing between VLM calls (spec §4.3/§5). A Pipeline is bound to one open
// render.Renderer for the session's PDF and is not safe for concurrent
// ProcessPage calls — the session worker invokes it strictly sequentially.
type Pipeline struct {
	client   *llm.Client
	renderer *render.Renderer
	opts     Options

	mu         sync.Mutex
	lastCallAt time.Time
}

// NewPipeline binds a VLM client and an already-open page renderer.
func NewPipeline(client *llm.Client, renderer *render.Renderer, opts Options) *Pipeline {
	return &Pipeline{client: client, renderer: renderer, opts: opts}
}

// throttle blocks until at least opts.InterCallDelay has elapsed since the
// previous VLM call, or ctx is done.
func (p *Pipeline) throttle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastCallAt.IsZero() {
		p.lastCallAt = time.Now()
		return nil
	}
	wait := p.opts.InterCallDelay - time.Since(p.lastCallAt)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.lastCallAt = time.Now()
	return nil
}

// decodeInto re-marshals a jsonrecover.Parse result and decodes it into a
// typed struct, so callers get Go types instead of map[string]any/[]any
// (spec §9 Open Question #2).
func decodeInto(v any, target any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bom: re-marshaling VLM payload: %w", err)
	}
	return json.Unmarshal(b, target)
}

func callVLM(ctx context.Context, client *llm.Client, imgPath, prompt string, maxTok int) (any, error) {
	text, err := client.Chat(ctx, []llm.Image{{Path: imgPath, MediaType: "image/png"}}, prompt, maxTok)
	if err != nil {
		return nil, fmt.Errorf("bom: VLM call failed: %w", err)
	}
	v, err := jsonrecover.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("bom: %w", err)
	}
	return v, nil
}

// ProcessPage runs both VLM passes over one isometric page, merges in the
// page's text-layer extraction, and returns the combined record. A cover
// page (per text.IsCover) short-circuits to an empty record, matching the
// text extractor's own boundary behavior (spec §8).
func (p *Pipeline) ProcessPage(ctx context.Context, pageIdx int, pageNumber int, text textextract.PageText, refSymbols []legend.Symbol) (model.PageBOMRecord, error) {
	rec := model.PageBOMRecord{PageNumber: pageNumber}
	if text.IsCover {
		rec.IsCover = true
		return rec, nil
	}

	drawing, drawingErr := p.analyzeDrawing(ctx, pageIdx, refSymbols)
	rec.DrawingAnalysisOK = drawingErr == nil
	if drawingErr != nil {
		rec.ErrorDetail = drawingErr.Error()
	} else {
		rec.DrawingNumber = drawing.DrawingNumber
		rec.LineNumber = drawing.LineNumber
		rec.PipeNumber = drawing.PipeNumber
		rec.LineDescription = drawing.LineDescription
		rec.Components = convertComponents(drawing.Components)
		rec.WeldPoints = convertWeldPoints(drawing.WeldPoints)
		rec.Dimensions = convertDimensions(drawing.Dimensions)
		rec.WeldCountVLM = drawing.WeldCount
		rec.PipePieces = convertPipePieces(drawing.PipePieces)
	}

	table, tableErr := p.analyzeTable(ctx, pageIdx, pageNumber == 1)
	rec.TableAnalysisOK = tableErr == nil
	if tableErr == nil {
		rec.BOMTable = postprocessBOMItems(table.BOMItems)
		rec.CutLengths = postprocessCutLengths(table.CutLengths, table.BOMItems)
	} else if rec.ErrorDetail == "" {
		rec.ErrorDetail = tableErr.Error()
	}

	mergeTextAndVLM(&rec, text)
	return rec, nil
}

func (p *Pipeline) analyzeDrawing(ctx context.Context, pageIdx int, refSymbols []legend.Symbol) (rawDrawingResponse, error) {
	if err := p.throttle(ctx); err != nil {
		return rawDrawingResponse{}, err
	}
	imgPath, err := p.renderer.Page(ctx, pageIdx, nil, p.opts.FullPage, fmt.Sprintf("vlm_page_%d.png", pageIdx+1))
	if err != nil {
		return rawDrawingResponse{}, fmt.Errorf("bom: rendering drawing page: %w", err)
	}
	prompt := drawingAnalysisPrompt
	if ref := legend.ReferenceText(refSymbols); ref != "" {
		prompt += "\n\nReference symbol legend for this drawing set:\n" + ref
	}
	v, err := callVLM(ctx, p.client, imgPath, prompt, p.opts.VLMMaxTok)
	if err != nil {
		return rawDrawingResponse{}, err
	}
	var resp rawDrawingResponse
	if err := decodeInto(v, &resp); err != nil {
		return rawDrawingResponse{}, fmt.Errorf("bom: decoding drawing response: %w", err)
	}
	return resp, nil
}

func (p *Pipeline) analyzeTable(ctx context.Context, pageIdx int, isPage1 bool) (rawTableResponse, error) {
	if err := p.throttle(ctx); err != nil {
		return rawTableResponse{}, err
	}
	pw, ph, ok := p.renderer.PageSize(pageIdx)
	if !ok {
		return rawTableResponse{}, fmt.Errorf("bom: page %d has no recorded size", pageIdx)
	}
	ratio := p.opts.TableCropXRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.70
	}
	clip := &render.Rect{X0: pw * (1 - ratio), Y0: 0, X1: pw, Y1: ph}

	imgPath, err := p.renderer.Page(ctx, pageIdx, clip, p.opts.TableCrop, fmt.Sprintf("vlm_table_%d.png", pageIdx+1))
	if err != nil {
		return rawTableResponse{}, fmt.Errorf("bom: rendering table crop: %w", err)
	}

	prompt := tableAnalysisPrompt
	if isPage1 {
		prompt = tableAnalysisPromptPage1
	}
	v, err := callVLM(ctx, p.client, imgPath, prompt, p.opts.VLMMaxTok)
	if err != nil {
		return rawTableResponse{}, err
	}
	var resp rawTableResponse
	if err := decodeInto(v, &resp); err != nil {
		return rawTableResponse{}, fmt.Errorf("bom: decoding table response: %w", err)
	}
	return resp, nil
}

const drawingAnalysisPrompt = `You are a piping engineer reading one page of a ship/plant isometric drawing set.

Identify and return as JSON:
1. drawing_number: the drawing number printed in the title block
2. line_number: the piping line number this isometric covers
3. pipe_number: the pipe/spool number, if shown separately from the line number
4. line_description: the service/fluid description for this line
5. pipe_pieces: array of pipe-piece identifiers called out on the isometric (strings like "A1234-1")
6. components: array of {"type":"valve|fitting|flange|support|instrument|...", "subtype":"gate|elbow_90|wn_flange|...", "size":"...", "tag":"...", "description":"...", "quantity":<int>} for every symbol you can identify against the reference legend below, if one is provided
7. weld_points: array of {"id":"SW-1|FFW-2|...", "kind":"shop_weld|field_fit_weld"}
8. weld_count: total number of weld points shown on the isometric
9. dimensions: array of {"from":"...", "to":"...", "length_mm":<number>, "orientation":"horizontal|vertical|..."} for labeled distances between weld points

Return ONLY a JSON object, no markdown fences. Use "" or [] for anything not present on the page.`

const tableAnalysisPrompt = `You are transcribing the tabular bill of materials printed on a ship/plant isometric drawing.

Return as JSON:
1. bom_items: array of {"letter_code":"A", "quantity":"4", "size":"...", "description":"...", "material":"...", "weight":<number or null>, "remarks":"..."} — one entry per lettered BOM row, in the order printed
2. cut_lengths: array of {"cut_no":<int>, "length_mm":<number>} for any explicit pipe cut-length table on this page

Do not include the LENGTH or CUT column header row itself as a bom_item. Return ONLY a JSON object, no markdown fences.`

const tableAnalysisPromptPage1 = tableAnalysisPrompt + `

This is the cover/first page of the isometric set: a title block and general notes may occupy most of the page alongside the BOM table. Only transcribe the lettered BOM rows, ignoring title-block and notes text.`

type rawDrawingResponse struct {
	DrawingNumber   string         `json:"drawing_number"`
	LineNumber      string         `json:"line_number"`
	PipeNumber      string         `json:"pipe_number"`
	LineDescription string         `json:"line_description"`
	PipePieces      []string       `json:"pipe_pieces"`
	Components      []rawComponent `json:"components"`
	WeldPoints      []rawWeldPoint `json:"weld_points"`
	Dimensions      []rawDimension `json:"dimensions"`
	WeldCount       int            `json:"weld_count"`
}

type rawComponent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	Size        string `json:"size"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
}

type rawWeldPoint struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type rawDimension struct {
	From        string `json:"from"`
	To          string `json:"to"`
	LengthMM    any    `json:"length_mm"`
	Orientation string `json:"orientation"`
}

type rawTableResponse struct {
	BOMItems    []rawBOMItem    `json:"bom_items"`
	CutLengths  []rawCutLength  `json:"cut_lengths"`
}

type rawBOMItem struct {
	LetterCode  string `json:"letter_code"`
	Quantity    any    `json:"quantity"`
	Size        string `json:"size"`
	Description string `json:"description"`
	Material    string `json:"material"`
	Weight      any    `json:"weight"`
	Remarks     string `json:"remarks"`
}

type rawCutLength struct {
	CutNo    any `json:"cut_no"`
	LengthMM any `json:"length_mm"`
}

func convertComponents(raw []rawComponent) []model.Component {
	out := make([]model.Component, 0, len(raw))
	for _, c := range raw {
		out = append(out, model.Component{
			Type:        c.Type,
			Subtype:     c.Subtype,
			Size:        c.Size,
			Tag:         c.Tag,
			Description: c.Description,
			Quantity:    toInt(c.Quantity, 1),
		})
	}
	return out
}

func convertWeldPoints(raw []rawWeldPoint) []model.WeldPoint {
	out := make([]model.WeldPoint, 0, len(raw))
	for _, w := range raw {
		kind := model.ShopWeld
		if isFieldFitWeld(w.ID) || isFieldFitWeld(w.Kind) {
			kind = model.FieldFitWeld
		}
		out = append(out, model.WeldPoint{ID: w.ID, Kind: kind})
	}
	return out
}

func convertDimensions(raw []rawDimension) []model.Dimension {
	out := make([]model.Dimension, 0, len(raw))
	for _, d := range raw {
		out = append(out, model.Dimension{
			From:        d.From,
			To:          d.To,
			LengthMM:    toFloat(d.LengthMM),
			Orientation: d.Orientation,
			Source:      "vlm",
		})
	}
	return out
}

func convertPipePieces(raw []string) []model.PipePiece {
	out := make([]model.PipePiece, 0, len(raw))
	for _, id := range raw {
		if id == "" {
			continue
		}
		out = append(out, model.PipePiece{ID: id, Provenance: "vlm"})
	}
	return out
}
