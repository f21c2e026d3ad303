// Package reconcile normalizes BOM letter codes and descriptions into the
// component taxonomy, aggregates drawing components, and produces per-item
// match verdicts (spec §4.4, C7).
package reconcile

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/brunobiangulo/pidscan/model"
)

var sortedSubtypeKeys = sortKeysByLenDesc(descriptionToSubtype)
var sortedTypeKeys = sortKeysByLenDesc(descriptionToType)

func sortKeysByLenDesc(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// componentInfo is the (type, subtype, skip) taxonomy decision for one BOM
// row, per spec §4.4 step 2.
func componentInfo(row model.BOMRow) (compType, subtype string, skip bool) {
	letter := strings.ToUpper(strings.TrimSpace(row.LetterCode))
	desc := strings.ToUpper(strings.TrimSpace(row.Description))

	if skipLetterCodes[letter] {
		return "", "", true
	}
	for _, kw := range skipDescriptionKeywords {
		if strings.Contains(desc, kw) {
			return "", "", true
		}
	}

	for _, kw := range sortedSubtypeKeys {
		if strings.Contains(desc, kw) {
			subtype = descriptionToSubtype[kw]
			break
		}
	}
	for _, kw := range sortedTypeKeys {
		if strings.Contains(desc, kw) {
			compType = descriptionToType[kw]
			break
		}
	}

	if subtype == "" {
		if lm, ok := bomLetterToTypes[letter]; ok {
			compType = lm.Type
			if len(lm.Subtypes) > 0 {
				subtype = lm.Subtypes[0]
			}
		}
	}
	if compType == "" {
		if lm, ok := bomLetterToTypes[letter]; ok {
			compType = lm.Type
		}
	}

	if isSkipType(compType) {
		return "", "", true
	}
	return compType, subtype, false
}

var numericPrefixRe = regexp.MustCompile(`[\d.]+`)

// parseBOMQuantity extracts the leading numeric value from a free-form
// quantity string like "4" or "9.5 M".
func parseBOMQuantity(qty string) float64 {
	s := strings.TrimSpace(qty)
	if s == "" {
		return 0
	}
	m := numericPrefixRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// isPipeLengthQty reports whether qty carries a metres-of-pipe unit (spec
// §4.4 step 3).
func isPipeLengthQty(qty string) bool {
	return strings.Contains(strings.ToUpper(qty), "M")
}

type drawingGroup struct {
	Type, Subtype string
	Quantity      int
}

func drawingKey(t, s string) string { return t + ":" + s }

// Reconcile reconciles one page's BOM table against its drawing components
// (spec §4.4 steps 1-6).
func Reconcile(page model.PageBOMRecord) model.PageComparison {
	groups := make(map[string]*drawingGroup)
	order := make([]string, 0)
	for _, c := range page.Components {
		ctype := strings.ToLower(c.Type)
		csubtype := strings.ToLower(c.Subtype)
		key := drawingKey(ctype, csubtype)
		g, ok := groups[key]
		if !ok {
			g = &drawingGroup{Type: ctype, Subtype: csubtype}
			groups[key] = g
			order = append(order, key)
		}
		qty := c.Quantity
		if qty == 0 {
			qty = 1
		}
		g.Quantity += qty
	}

	var items []model.ComparisonItem
	matchedKeys := make(map[string]bool)

	for _, row := range page.BOMTable {
		compType, subtype, skip := componentInfo(row)

		if skip {
			items = append(items, model.ComparisonItem{
				BOMLetter:      strings.TrimSpace(row.LetterCode),
				BOMDescription: strings.TrimSpace(row.Description),
				BOMQuantity:    row.Quantity,
				BOMSize:        strings.TrimSpace(row.Size),
				Verdict:        model.NotApplicable,
				Notes:          "not comparable (gasket/bolt/paint etc.)",
			})
			continue
		}
		if compType == "" && subtype == "" {
			items = append(items, model.ComparisonItem{
				BOMLetter:      strings.TrimSpace(row.LetterCode),
				BOMDescription: strings.TrimSpace(row.Description),
				BOMQuantity:    row.Quantity,
				BOMSize:        strings.TrimSpace(row.Size),
				Verdict:        model.NotApplicable,
				Notes:          "unable to map to taxonomy",
			})
			continue
		}
		if isPipeLengthQty(row.Quantity) {
			items = append(items, model.ComparisonItem{
				BOMLetter:        strings.TrimSpace(row.LetterCode),
				BOMDescription:   strings.TrimSpace(row.Description),
				BOMQuantity:      row.Quantity,
				BOMSize:          strings.TrimSpace(row.Size),
				DrawingComponent: drawingKey(compType, subtype),
				Verdict:          model.NotApplicable,
				Notes:            "length unit (M) - quantity not comparable",
			})
			continue
		}

		bomQty := parseBOMQuantity(row.Quantity)
		key := drawingKey(compType, subtype)

		var matchedKey string
		drawingQty := 0
		hasQty := false

		if g, ok := groups[key]; ok {
			drawingQty, hasQty = g.Quantity, true
			matchedKey = key
		} else {
			for _, k := range order {
				g := groups[k]
				if g.Type == compType && subtype != "" && g.Subtype != "" &&
					(strings.Contains(g.Subtype, subtype) || strings.Contains(subtype, g.Subtype)) {
					drawingQty, hasQty = g.Quantity, true
					matchedKey = k
					break
				}
			}
		}
		if matchedKey != "" {
			matchedKeys[matchedKey] = true
		}

		var verdict model.MatchVerdict
		diff := 0
		switch {
		case matchedKey == "":
			verdict = model.BOMOnly
		case math.Abs(bomQty-float64(drawingQty)) < 0.01:
			verdict = model.Match
		default:
			verdict = model.Mismatch
			diff = drawingQty - int(bomQty)
		}

		items = append(items, model.ComparisonItem{
			BOMLetter:        strings.TrimSpace(row.LetterCode),
			BOMDescription:   strings.TrimSpace(row.Description),
			BOMQuantity:      row.Quantity,
			BOMSize:          strings.TrimSpace(row.Size),
			DrawingComponent: drawingKey(compType, subtype),
			DrawingQuantity:  drawingQty,
			HasDrawingQty:    hasQty,
			Verdict:          verdict,
			QuantityDiff:     diff,
		})
	}

	for _, key := range order {
		if matchedKeys[key] {
			continue
		}
		g := groups[key]
		if g.Type == "support" || g.Type == "instrument" {
			continue
		}
		items = append(items, model.ComparisonItem{
			DrawingComponent: drawingKey(g.Type, g.Subtype),
			DrawingQuantity:  g.Quantity,
			HasDrawingQty:    true,
			Verdict:          model.DrawingOnly,
			QuantityDiff:     g.Quantity,
			Notes:            fmt.Sprintf("drawing-only: %s x%d", g.Subtype, g.Quantity),
		})
	}

	summary := summarize(items, len(page.BOMTable))

	return model.PageComparison{
		PageNumber:      page.PageNumber,
		DrawingNumber:   page.DrawingNumber,
		LineNumber:      page.LineNumber,
		ComparisonItems: items,
		Summary:         summary,
	}
}

func summarize(items []model.ComparisonItem, totalBOM int) model.PageComparisonSummary {
	var s model.PageComparisonSummary
	s.TotalBOMItems = totalBOM
	for _, it := range items {
		switch it.Verdict {
		case model.Match:
			s.Matched++
		case model.Mismatch:
			s.Mismatched++
		case model.BOMOnly:
			s.BOMOnly++
		case model.DrawingOnly:
			s.DrawingOnly++
		case model.NotApplicable:
			s.NAItems++
		}
	}
	s.ComparableItems = s.Matched + s.Mismatched + s.BOMOnly + s.DrawingOnly
	if s.ComparableItems > 0 {
		rate := float64(s.Matched) / float64(s.ComparableItems) * 100
		s.MatchRate = math.Round(rate*10) / 10
	}
	return s
}
