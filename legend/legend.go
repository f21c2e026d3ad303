// Package legend harvests every symbol on a P&ID legend page: a four-phase
// pipeline (render, VLM analyze, validate/dedupe, image crop) that produces
// a categorized symbol list with per-symbol raster crops (spec §4.2, C5),
// grounded line-for-line on original_source/symbol_db_service.py.
package legend

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/pidscan/jsonrecover"
	"github.com/brunobiangulo/pidscan/llm"
	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/render"
)

// BBoxPct is a bounding box in fractional page coordinates (spec §3).
type BBoxPct struct{ X0, Y0, X1, Y1 float64 }

// Symbol is one harvested legend entry, before it is persisted as a
// model.SymbolEntry.
type Symbol struct {
	Category    model.SymbolCategory
	Code        string
	Description string
	BBoxPct     *BBoxPct
	ImagePath   string
}

// ToModel converts a harvested Symbol to the persisted record shape,
// assigning the 1-based ordinal the caller has chosen for it.
func (s Symbol) ToModel(ordinal int) model.SymbolEntry {
	e := model.SymbolEntry{
		Ordinal:     ordinal,
		Category:    s.Category,
		Code:        s.Code,
		Description: s.Description,
		ImagePath:   s.ImagePath,
	}
	if s.BBoxPct != nil {
		e.BBox = &model.BBox{X0: s.BBoxPct.X0, Y0: s.BBoxPct.Y0, X1: s.BBoxPct.X1, Y1: s.BBoxPct.Y1}
	}
	return e
}

// ReferenceText renders harvested symbols as the reference-symbols block
// fed into the BOM drawing-pass prompt (spec §4.3), grounded on
// get_symbol_reference_text in the original service.
func ReferenceText(symbols []Symbol) string {
	byCategory := make(map[model.SymbolCategory][]Symbol)
	var order []model.SymbolCategory
	for _, s := range symbols {
		if _, ok := byCategory[s.Category]; !ok {
			order = append(order, s.Category)
		}
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}
	var b strings.Builder
	for _, cat := range order {
		fmt.Fprintf(&b, "\n### %s\n", cat)
		for _, s := range byCategory[cat] {
			if s.Code != "" {
				fmt.Fprintf(&b, "  - %s: %s\n", s.Code, s.Description)
			} else {
				fmt.Fprintf(&b, "  - %s\n", s.Description)
			}
		}
	}
	return b.String()
}

const legendAnalysisPrompt = `You are an expert P&ID (Piping and Instrumentation Diagram) engineer reviewing the LEGEND page of a ship/plant P&ID package.

The page lays out a symbol legend in columns, left to right: PIPING SYMBOLS (split into two sub-columns of pipe fittings and in-line devices), VALVE SYMBOLS, ACTUATORS, ACTUATED VALVES (including an "INSTRUMENT VALVE BODIES" sub-header to skip), SAFETY DEVICE SYMBOLS, and OTHER SYMBOLS (flowmeters, orifices, steam traps, and similar instrumentation).

Each entry pairs a small graphic symbol on the left with a description on the right.

Extract every symbol entry. For each one return:
1. category: one of PIPING, VALVE, ACTUATOR, ACTUATED_VALVE, SAFETY_DEVICE, OTHER
2. symbol_name: a short code shown inside or beside the graphic, or "" if none
3. description: the full description exactly as written, with multi-line descriptions merged into a single string
4. bbox_pct: [x1,y1,x2,y2] as fractions (0-1) of page width/height, tightly enclosing only the graphic (not its description text)

Do not emit section headers (PIPING SYMBOLS, VALVE SYMBOLS, ...), column headers (SYMBOL, DESCRIPTION), grid border labels (single letters A-K, numbers 1-16), or title-block text (SHIP NO, CLIENT, DRAWING, REV, DATE, SCALE).

Create separate entries for OPEN/CLOSED valve variants and for distinct DOUBLE BLOCK AND BLEED variants.

Return ONLY a JSON array, no markdown fences:
[{"category":"PIPING","symbol_name":"TS","description":"TEMPORARY STRAINER","bbox_pct":[0.02,0.06,0.08,0.08]}, ...]`

type rawSymbolRow struct {
	Category    string    `json:"category"`
	SymbolName  string    `json:"symbol_name"`
	Description string    `json:"description"`
	BBoxPct     []float64 `json:"bbox_pct"`
}

// Options bounds the two render.Renderer.Page calls phase 1 performs.
type Options struct {
	Render      render.Options
	VLMMaxTok   int
	SymbolsDir  string // where per-symbol crops are written
	FullPNGPath string // legend_page_full.png destination (≈300 DPI)
	VLMPNGPath  string // legend_page_vlm.png destination (≤5000px)
}

// garbagePatterns drop rows that leaked through from section headers, grid
// labels, or title-block text (spec §4.2 phase 3, ported from
// GARBAGE_PATTERNS).
var garbagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^[A-K]$`),
	regexp.MustCompile(`(?i)^1[0-6]$|^[1-9]$`),
	regexp.MustCompile(`(?i)^(SYMBOL|DESCRIPTION|DISCRIPTION|SYMBOLS?)$`),
	regexp.MustCompile(`(?i)^(SHIP NO|CLIENT|DRAWING|REV\b|DATE|SCALE|CHECKED|APPROVED)`),
	regexp.MustCompile(`(?i)^(AA\s*AA|NAN\b|NN")`),
	regexp.MustCompile(`^\s*$`),
	regexp.MustCompile(`(?i)^INSTRUMENT$`),
	regexp.MustCompile(`(?i)^INSTRUMENT\s+VALVE\s+BODIES`),
	regexp.MustCompile(`(?i)^LEGEND SYMBOL`),
	regexp.MustCompile(`(?i)^MOTOR[-\s]*HELMET`),
	regexp.MustCompile(`(?i)^(AA\s+)+`),
	regexp.MustCompile(`(?i)^(NN"\s*)+$`),
	regexp.MustCompile(`(?i)^PIPING SYMBOLS`),
	regexp.MustCompile(`(?i)^VALVE SYMBOLS`),
	regexp.MustCompile(`(?i)^ACTUATORS?$`),
	regexp.MustCompile(`(?i)^ACTUATED\s+VALVES?$`),
	regexp.MustCompile(`(?i)^SAFETY\s+DEVICE`),
	regexp.MustCompile(`(?i)^OTHER\s+SYMBOLS?`),
}

var validCategories = map[string]model.SymbolCategory{
	"PIPING":          model.CategoryPiping,
	"VALVE":           model.CategoryValve,
	"ACTUATOR":        model.CategoryActuator,
	"ACTUATED_VALVE":  model.CategoryActuatedValve,
	"SAFETY_DEVICE":   model.CategorySafetyDevice,
	"OTHER":           model.CategoryOther,
}

func normalizeCategory(raw string) model.SymbolCategory {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	if cat, ok := validCategories[key]; ok {
		return cat
	}
	return model.CategoryOther
}

func isGarbage(desc string) bool {
	for _, re := range garbagePatterns {
		if re.MatchString(desc) {
			return true
		}
	}
	return false
}

// validateAndClean applies phase 3: garbage filtering, category
// normalization, and case-folded description dedup keeping first occurrence.
func validateAndClean(rows []rawSymbolRow) []rawSymbolRow {
	seen := make(map[string]bool)
	var out []rawSymbolRow
	for _, r := range rows {
		desc := strings.TrimSpace(r.Description)
		if len(desc) < 3 || isGarbage(desc) {
			continue
		}
		key := strings.ToUpper(desc)
		if seen[key] {
			continue
		}
		seen[key] = true
		r.Description = desc
		r.Category = string(normalizeCategory(r.Category))
		r.SymbolName = strings.TrimSpace(r.SymbolName)
		out = append(out, r)
	}
	return out
}

// decodeRows converts jsonrecover's loosely-typed value into []rawSymbolRow,
// coercing bbox_pct's numeric elements and tolerating a missing field.
func decodeRows(v any) ([]rawSymbolRow, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("legend: VLM payload is not an array")
	}
	rows := make([]rawSymbolRow, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := rawSymbolRow{
			Category:    str(m["category"]),
			SymbolName:  str(m["symbol_name"]),
			Description: str(m["description"]),
		}
		if bb, ok := m["bbox_pct"].([]any); ok && len(bb) == 4 {
			vals := make([]float64, 4)
			for i, x := range bb {
				vals[i] = num(x)
			}
			row.BBoxPct = vals
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	}
	return 0
}

// Harvest runs the four-phase pipeline on the legend page (page index,
// 0-based) of the open renderer/PDF pair. On VLM failure or zero surviving
// rows it falls back to harvestFromTextLayout.
func Harvest(ctx context.Context, r *render.Renderer, pdfReader *pdf.Reader, page int, client *llm.Client, opts Options) ([]Symbol, error) {
	fullFilename := opts.FullPNGPath
	if fullFilename == "" {
		fullFilename = "legend_page_full.png"
	}
	vlmFilename := opts.VLMPNGPath
	if vlmFilename == "" {
		vlmFilename = "legend_page_vlm.png"
	}

	fullPath, err := r.Page(ctx, page, nil, render.Options{
		MaxPixelExtent: 100000, MinDPI: 300, HardCeilingDPI: 300,
	}, fullFilename)
	if err != nil {
		return harvestFromTextLayout(pdfReader, page, opts)
	}

	vlmPath, err := r.Page(ctx, page, nil, opts.Render, vlmFilename)
	if err != nil {
		return harvestFromTextLayout(pdfReader, page, opts)
	}

	rows, err := analyzeWithVLM(ctx, client, vlmPath, opts.VLMMaxTok)
	if err != nil {
		return harvestFromTextLayout(pdfReader, page, opts)
	}
	rows = validateAndClean(rows)
	if len(rows) == 0 {
		return harvestFromTextLayout(pdfReader, page, opts)
	}

	pw, ph, ok := r.PageSize(page)
	if !ok {
		return harvestFromTextLayout(pdfReader, page, opts)
	}
	pdfPage := pdfReader.Page(page + 1)
	symbols := cropSymbolImages(rows, pdfPage, pw, ph, fullPath, opts.SymbolsDir)
	return symbols, nil
}

func analyzeWithVLM(ctx context.Context, client *llm.Client, imgPath string, maxTok int) ([]rawSymbolRow, error) {
	if maxTok == 0 {
		maxTok = 16384
	}
	text, err := client.Chat(ctx, []llm.Image{{Path: imgPath, MediaType: "image/png"}}, legendAnalysisPrompt, maxTok)
	if err != nil {
		return nil, fmt.Errorf("legend: VLM call failed: %w", err)
	}
	v, err := jsonrecover.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("legend: %w", err)
	}
	return decodeRows(v)
}
