package bom

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/brunobiangulo/pidscan/model"
)

// letterCodeRe pulls an embedded "A ..." letter-code prefix out of a BOM
// description when the VLM folded it into a single field instead of
// returning letter_code separately.
var letterCodeRe = regexp.MustCompile(`^([A-Z])\s+(.+)$`)

// cutShapeRe detects a BOM row that is actually a cut-length entry that
// leaked into the table transcription (e.g. "1200 MM <3>").
var cutShapeRe = regexp.MustCompile(`^\d+\s*MM\b`)

// cutWithNoRe extracts an explicit cut length and its bracketed cut number
// from a mixed-in-BOM row, e.g. "1200 MM <3>".
var cutWithNoRe = regexp.MustCompile(`^(\d+)\s*MM\s*(?:<(\d+)>)?`)

var lengthCutHeaderWords = map[string]bool{"LENGTH": true, "CUT": true}

// postprocessBOMItems cleans a raw VLM table pass into model.BOMRow rows:
// recovering an embedded letter code, dropping LENGTH/CUT header rows and
// cut-shaped rows that belong in CutLengths instead, and coercing weight to
// a float (spec §4.3, ported from _postprocess_bom_items).
func postprocessBOMItems(raw []rawBOMItem) []model.BOMRow {
	out := make([]model.BOMRow, 0, len(raw))
	for _, item := range raw {
		letter := strings.ToUpper(strings.TrimSpace(item.LetterCode))
		desc := strings.TrimSpace(item.Description)

		if letter == "" {
			if m := letterCodeRe.FindStringSubmatch(desc); m != nil {
				letter = m[1]
				desc = m[2]
			}
		}

		upperDesc := strings.ToUpper(desc)
		if lengthCutHeaderWords[upperDesc] {
			continue
		}
		if letter == "" && cutShapeRe.MatchString(desc) {
			continue
		}

		out = append(out, model.BOMRow{
			LetterCode:  letter,
			Quantity:    quantityToString(item.Quantity),
			Size:        strings.TrimSpace(item.Size),
			Description: desc,
			Material:    strings.TrimSpace(item.Material),
			Weight:      toFloat(item.Weight),
			Remarks:     strings.TrimSpace(item.Remarks),
		})
	}
	return out
}

// postprocessCutLengths merges explicit cut_lengths entries with any
// cut-shaped rows that leaked into the BOM table transcription, sorted by
// cut number (spec §4.3, ported from _postprocess_cut_lengths).
func postprocessCutLengths(raw []rawCutLength, bomRaw []rawBOMItem) []model.CutLength {
	var out []model.CutLength
	seenCutNo := make(map[int]bool)

	for _, c := range raw {
		cutNo := toInt(c.CutNo, 0)
		length := toFloat(c.LengthMM)
		if length <= 0 {
			continue
		}
		out = append(out, model.CutLength{CutNo: cutNo, LengthMM: length})
		if cutNo > 0 {
			seenCutNo[cutNo] = true
		}
	}

	nextCutNo := 1
	for _, item := range bomRaw {
		if strings.TrimSpace(item.LetterCode) != "" {
			continue
		}
		desc := strings.TrimSpace(item.Description)
		m := cutWithNoRe.FindStringSubmatch(desc)
		if m == nil {
			continue
		}
		length, err := strconv.ParseFloat(m[1], 64)
		if err != nil || length <= 0 {
			continue
		}
		cutNo := 0
		if m[2] != "" {
			cutNo, _ = strconv.Atoi(m[2])
		}
		if cutNo == 0 {
			for seenCutNo[nextCutNo] {
				nextCutNo++
			}
			cutNo = nextCutNo
			nextCutNo++
		}
		if seenCutNo[cutNo] {
			continue
		}
		seenCutNo[cutNo] = true
		out = append(out, model.CutLength{CutNo: cutNo, LengthMM: length})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CutNo < out[j].CutNo })
	return out
}

func isFieldFitWeld(s string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), "FFW") ||
		strings.Contains(strings.ToUpper(s), "FIELD")
}

func quantityToString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}

func toInt(v any, def int) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
