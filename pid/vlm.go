package pid

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/pidscan/dxfspec"
	"github.com/brunobiangulo/pidscan/jsonrecover"
	"github.com/brunobiangulo/pidscan/llm"
	"github.com/brunobiangulo/pidscan/model"
)

// pageAnalysisPrompt asks the vision model to read every valve and line-spec
// tag directly off a rendered P&ID page, the "optional multi-page VLM
// analysis" leg alongside the regex pass over the text layer, grounded on
// original_source/.../pid_vlm_service.py's PID_PAGE_ANALYSIS_PROMPT.
const pageAnalysisPrompt = `You are an expert P&ID (Piping and Instrumentation Diagram) engineer.
You are analyzing page %d of a P&ID drawing for a ship's pump room piping system.

## REFERENCE SYMBOL LIBRARY (from the legend page):
%s

## YOUR TASK:
Carefully analyze this P&ID drawing page and extract:

1. Every pipe line specification tag, in the form
   SIZE"-SYSTEM_CODE-LINE_NUMBER-PIPING_CLASS-SCHEDULE#PRESSURE_RATING-MATERIAL_CODE
   (e.g. 10"-CSW-9103-CS3-40#150-NI). The tag field is system_code + line_number
   (e.g. CSW9103).
2. Every valve, with its tag (e.g. CSW9112, FCV1234), valve_type (one of
   BUTTERFLY, GATE, GLOBE, CHECK, BALL, PLUG, NEEDLE, CONTROL - match against
   the reference symbol library above), valve_subtype, nominal size, and the
   line_spec string it sits on.

Return ONLY valid JSON, no markdown fences:
{
  "line_specs": [
    {"full_spec": "10\"-CSW-9103-CS3-40#150-NI", "size": "10", "system_code": "CSW", "line_number": "9103", "tag": "CSW9103", "piping_class": "CS3", "schedule": "40", "pressure_rating": "150", "material_code": "NI", "fluid": "SW"}
  ],
  "valves": [
    {"tag": "CSW9112", "valve_type": "BUTTERFLY", "valve_subtype": "BUTTERFLY VALVE", "size": "12", "line_spec": "12\"-CSW-9112-CS3-STD#150-NI"}
  ]
}`

var vlmValveTypes = map[string]model.ValveType{
	"BUTTERFLY": model.ValveButterfly,
	"BFV":       model.ValveButterfly,
	"GATE":      model.ValveGate,
	"GLOBE":     model.ValveGlobe,
	"CHECK":     model.ValveCheck,
	"BALL":      model.ValveBall,
	"PLUG":      model.ValvePlug,
	"NEEDLE":    model.ValveNeedle,
	"CONTROL":   model.ValveControl,
}

func vlmValveType(raw string) model.ValveType {
	if t, ok := vlmValveTypes[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return t
	}
	return model.ValveButterfly
}

// AnalyzeVLM sends one rendered P&ID page to the vision model and decodes
// its valve/line-spec findings, grounded on
// original_source/.../pid_vlm_service.py's _analyze_single_pid_page.
func AnalyzeVLM(ctx context.Context, client *llm.Client, imgPath string, pageNumber int, symbolReference string, maxTok int) ([]model.ValveExtract, []dxfspec.LineSpec, error) {
	if maxTok == 0 {
		maxTok = 8192
	}
	prompt := fmt.Sprintf(pageAnalysisPrompt, pageNumber, symbolReference)
	text, err := client.Chat(ctx, []llm.Image{{Path: imgPath, MediaType: "image/png"}}, prompt, maxTok)
	if err != nil {
		return nil, nil, fmt.Errorf("pid: VLM call failed: %w", err)
	}

	v, err := jsonrecover.Parse(text)
	if err != nil {
		return nil, nil, fmt.Errorf("pid: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("pid: VLM payload is not an object")
	}

	return decodeVLMValves(obj["valves"], pageNumber), decodeVLMLineSpecs(obj["line_specs"], pageNumber), nil
}

func decodeVLMValves(v any, pageNumber int) []model.ValveExtract {
	arr, _ := v.([]any)
	seen := make(map[string]bool, len(arr))
	out := make([]model.ValveExtract, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tag := strings.ToUpper(strings.TrimSpace(vlmStr(m["tag"])))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true

		vtype := vlmValveType(vlmStr(m["valve_type"]))
		subtype := strings.TrimSpace(vlmStr(m["valve_subtype"]))
		if subtype == "" {
			subtype = detectSubtype(tag, vtype)
		}
		size := strings.TrimSpace(vlmStr(m["size"]))
		if size != "" && !strings.HasSuffix(size, `"`) {
			size += `"`
		}

		out = append(out, model.ValveExtract{
			Tag:         tag,
			Type:        vtype,
			Subtype:     subtype,
			NominalSize: size,
			SourceSheet: pageNumber,
			Provenance:  model.ProvenanceVLM,
		})
	}
	return out
}

func decodeVLMLineSpecs(v any, pageNumber int) []dxfspec.LineSpec {
	arr, _ := v.([]any)
	seen := make(map[string]bool, len(arr))
	out := make([]dxfspec.LineSpec, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		lineNumber := strings.TrimSpace(vlmStr(m["line_number"]))
		full := strings.TrimSpace(vlmStr(m["full_spec"]))
		key := lineNumber
		if key == "" {
			key = full
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, dxfspec.LineSpec{
			Raw:            fallback(full, key),
			NominalSize:    vlmStr(m["size"]),
			LineNumber:     lineNumber,
			PipingClass:    fallback(vlmStr(m["piping_class"]), "CS3"),
			Schedule:       fallback(vlmStr(m["schedule"]), "STD"),
			PressureRating: vlmStr(m["pressure_rating"]),
			MaterialCode:   vlmStr(m["material_code"]),
			FluidFamily:    vlmStr(m["fluid"]),
			SourceSheet:    pageNumber,
			Provenance:     dxfspec.ProvenanceVLM,
		})
	}
	return out
}

func vlmStr(v any) string {
	s, _ := v.(string)
	return s
}

// MergeValves combines a page set's regex-pass and VLM-pass valve
// extractions, grounded on original_source/.../pid_vlm_service.py's
// merge_regex_and_vlm: the VLM result is authoritative, a regex-only tag is
// appended as-is, and a tag found by both passes is marked ProvenanceBoth
// with regex filling in any size the VLM pass left blank.
func MergeValves(regexValves, vlmValves []model.ValveExtract) []model.ValveExtract {
	out := make([]model.ValveExtract, len(vlmValves))
	copy(out, vlmValves)

	byTag := make(map[string]int, len(out))
	for i, v := range out {
		byTag[v.Tag] = i
	}

	for _, rv := range regexValves {
		if i, ok := byTag[rv.Tag]; ok {
			out[i].Provenance = model.ProvenanceBoth
			if out[i].NominalSize == "" {
				out[i].NominalSize = rv.NominalSize
			}
			continue
		}
		out = append(out, rv)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// MergeLineSpecs is MergeValves' counterpart for line-specification tags,
// keyed on line number since that is the component the VLM prompt and the
// regex pass both recover independent of the full spec string's exact
// punctuation.
func MergeLineSpecs(regexSpecs, vlmSpecs []dxfspec.LineSpec) []dxfspec.LineSpec {
	out := make([]dxfspec.LineSpec, len(vlmSpecs))
	copy(out, vlmSpecs)

	byLine := make(map[string]int, len(out))
	for i, s := range out {
		if s.LineNumber != "" {
			byLine[s.LineNumber] = i
		}
	}

	for _, rs := range regexSpecs {
		if rs.LineNumber != "" {
			if i, ok := byLine[rs.LineNumber]; ok {
				out[i].Provenance = dxfspec.ProvenanceBoth
				continue
			}
		}
		out = append(out, rs)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LineNumber < out[j].LineNumber })
	return out
}
