// Package pid extracts valve tags and piping line specifications directly
// from a P&ID page's ordered text layer, grounded on
// original_source/.../pid_service.py's regex pass over PyMuPDF text. This is
// the "C2 regex-valves" leg of the P&ID path: cheap, deterministic, and run
// before (and independent of) any VLM call.
package pid

import (
	"regexp"
	"strings"

	"github.com/brunobiangulo/pidscan/dxfspec"
	"github.com/brunobiangulo/pidscan/model"
)

// valveTagRe matches the two tag families the original service recognized:
// manual valves (CSW/SSW/CFW/FW prefix) and control valves/actuated devices
// (FCV/TCV/XV/LCV/PCV prefix), each followed by a 4-digit loop number and an
// optional suffix letter.
var valveTagRe = regexp.MustCompile(`\b(?:CSW|SSW|CFW|FW)\d{4}[A-Z]?\b|\b(?:FCV|TCV|XV|LCV|PCV)\d{4}[A-Z]?\b`)

// lineSpecRe matches a piping line-specification tag, e.g.
// `10"-CSW-9103-CS3-40#150-NI` (spec GLOSSARY). Piping class and schedule
// are optional; callers fall back to the job default when absent.
var lineSpecRe = regexp.MustCompile(`(\d+(?:\.\d+)?)"?\s*-\s*([A-Z]{2,4})\s*-\s*(\d{3,5}[A-Z]?)(?:\s*-\s*([A-Z]{2}\d))?(?:\s*-\s*(STD|XS|10|20|40|80|160))?`)

var controlPrefixes = []string{"FCV", "TCV", "XV", "LCV", "PCV"}

var valveTypeKeywords = []struct {
	kw string
	t  model.ValveType
}{
	{"BUTTERFLY", model.ValveButterfly},
	{"BFV", model.ValveButterfly},
	{"GATE", model.ValveGate},
	{"GLOBE", model.ValveGlobe},
	{"CHECK", model.ValveCheck},
	{"BALL", model.ValveBall},
	{"PLUG", model.ValvePlug},
	{"NEEDLE", model.ValveNeedle},
}

// contextWindowChars is how far around a tag match the surrounding text is
// searched for a valve-type keyword or line spec, mirroring the original
// service's 500-char context window.
const contextWindowChars = 500

// ExtractValves scans a page's ordered text lines for valve tags, returning
// one ValveExtract per distinct tag found (first occurrence wins; repeated
// tags within a page are deduplicated since they denote the same physical
// valve referenced more than once).
func ExtractValves(lines []string, pageNumber int) []model.ValveExtract {
	joined := strings.Join(lines, "\n")
	if joined == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []model.ValveExtract
	for _, loc := range valveTagRe.FindAllStringIndex(joined, -1) {
		tag := joined[loc[0]:loc[1]]
		if seen[tag] {
			continue
		}
		seen[tag] = true

		ctx := contextWindow(joined, loc[0], contextWindowChars)
		vtype := detectValveType(tag, ctx)
		out = append(out, model.ValveExtract{
			Tag:         tag,
			Type:        vtype,
			Subtype:     detectSubtype(tag, vtype),
			NominalSize: nominalSizeFromContext(ctx),
			SourceSheet: pageNumber,
			Provenance:  model.ProvenanceRegex,
		})
	}
	return out
}

// ExtractLineSpecs recovers piping line-specification tags from a page's
// text independent of any single valve match.
func ExtractLineSpecs(lines []string, pageNumber int) []dxfspec.LineSpec {
	joined := strings.Join(lines, "\n")
	if joined == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []dxfspec.LineSpec
	for _, m := range lineSpecRe.FindAllStringSubmatch(joined, -1) {
		if seen[m[0]] {
			continue
		}
		seen[m[0]] = true
		out = append(out, dxfspec.LineSpec{
			Raw:         strings.TrimSpace(m[0]),
			NominalSize: m[1],
			LineNumber:  m[3],
			PipingClass: fallback(m[4], "CS3"),
			Schedule:    fallback(m[5], "STD"),
			SourceSheet: pageNumber,
			Provenance:  dxfspec.ProvenanceRegex,
		})
	}
	return out
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func contextWindow(s string, pos, radius int) string {
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + radius
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

func isControlTag(tag string) bool {
	for _, p := range controlPrefixes {
		if strings.HasPrefix(tag, p) {
			return true
		}
	}
	return false
}

func detectValveType(tag, ctx string) model.ValveType {
	if isControlTag(tag) {
		return model.ValveControl
	}
	upper := strings.ToUpper(ctx)
	for _, kw := range valveTypeKeywords {
		if strings.Contains(upper, kw.kw) {
			return kw.t
		}
	}
	// Manual valve tags with no keyword in context default to the most
	// common body type on these drawings.
	return model.ValveButterfly
}

func detectSubtype(tag string, vtype model.ValveType) string {
	if vtype != model.ValveControl {
		return string(vtype) + " VALVE"
	}
	switch {
	case strings.HasPrefix(tag, "FCV"):
		return "FLOW CONTROL VALVE"
	case strings.HasPrefix(tag, "TCV"):
		return "TEMPERATURE CONTROL VALVE"
	case strings.HasPrefix(tag, "LCV"):
		return "LEVEL CONTROL VALVE"
	case strings.HasPrefix(tag, "PCV"):
		return "PRESSURE CONTROL VALVE"
	default:
		return "ON/OFF CONTROL VALVE"
	}
}

func nominalSizeFromContext(ctx string) string {
	m := lineSpecRe.FindStringSubmatch(ctx)
	if m == nil {
		return ""
	}
	return m[1] + "\""
}
