package legend

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/pidscan/model"
	"github.com/brunobiangulo/pidscan/textextract"
)

// sectionHeaders recognizes a legend page's column headers so the text
// fallback can track which category the lines beneath them belong to,
// ported from the original service's SECTION_HEADERS_TEXT map.
var sectionHeaders = []struct {
	keyword  string
	category model.SymbolCategory
}{
	{"PIPING SYMBOL", model.CategoryPiping},
	{"VALVE SYMBOL", model.CategoryValve},
	{"ACTUATED VALVE", model.CategoryActuatedValve},
	{"ACTUATOR", model.CategoryActuator},
	{"SAFETY DEVICE", model.CategorySafetyDevice},
	{"OTHER SYMBOL", model.CategoryOther},
}

func sectionHeaderCategory(line string) (model.SymbolCategory, bool) {
	upper := strings.ToUpper(line)
	for _, h := range sectionHeaders {
		if strings.Contains(upper, h.keyword) {
			return h.category, true
		}
	}
	return "", false
}

// splitSymbolDescription applies the original's short-code/long-description
// heuristic: a short leading token (<=8 chars) followed by a longer trailing
// token is read as "code ... description", otherwise the whole line is the
// description.
func splitSymbolDescription(line string) (code, description string) {
	fields := strings.Fields(line)
	if len(fields) >= 2 {
		first, last := fields[0], fields[len(fields)-1]
		if len(first) <= 8 && len(last) > 8 {
			return first, strings.Join(fields[1:], " ")
		}
	}
	return "", line
}

// harvestFromTextLayout is the degraded extractor used when VLM analysis of
// the legend page fails or returns nothing usable: it walks the page's text
// layer top to bottom, tracks the current column from section-header
// keywords, and treats each surviving line as one symbol entry without an
// image crop (spec §4.2 fallback path).
func harvestFromTextLayout(pdfReader *pdf.Reader, page int, opts Options) ([]Symbol, error) {
	pdfPage := pdfReader.Page(page + 1)
	elems := textextract.ElementsFromPage(pdfPage)
	lines := textextract.OrderLines(elems)

	var symbols []Symbol
	current := model.CategoryOther
	seen := make(map[string]bool)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if cat, ok := sectionHeaderCategory(trimmed); ok {
			current = cat
			continue
		}
		if len(trimmed) < 3 || isGarbage(trimmed) {
			continue
		}
		key := strings.ToUpper(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true

		code, desc := splitSymbolDescription(trimmed)
		symbols = append(symbols, Symbol{Category: current, Code: code, Description: desc})
	}

	if len(symbols) == 0 {
		return nil, fmt.Errorf("legend: no symbols recovered from text layout fallback")
	}
	return symbols, nil
}
