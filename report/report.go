// Package report renders a session's BOM extraction and reconciliation
// results to a multi-sheet Excel workbook (spec §4.7, C9), grounded on
// original_source/generate_pipe_bom_excel.py's sheet layout and styling,
// reimplemented with excelize/v2 — the only spreadsheet library in the
// corpus (parser/xlsx.go reads with it; this package is the write-side
// mirror of that same dependency).
package report

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/pidscan/model"
)

var columnWidths = []float64{6, 8, 16, 30, 12, 12, 14, 16, 40}

type styleSet struct {
	header   int
	data     int
	total    int
	match    int
	mismatch int
	bomOnly  int
	drawOnly int
	na       int
}

func buildStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error

	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2F5496"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return s, err
	}

	s.data, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 9},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return s, err
	}

	s.total, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 10},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFF2CC"}},
	})
	if err != nil {
		return s, err
	}

	s.match, err = colorStyle(f, "C6EFCE")
	if err != nil {
		return s, err
	}
	s.mismatch, err = colorStyle(f, "FFEB9C")
	if err != nil {
		return s, err
	}
	s.bomOnly, err = colorStyle(f, "BDD7EE")
	if err != nil {
		return s, err
	}
	s.drawOnly, err = colorStyle(f, "F8CBAD")
	if err != nil {
		return s, err
	}
	s.na, err = colorStyle(f, "D9D9D9")
	if err != nil {
		return s, err
	}
	return s, nil
}

func colorStyle(f *excelize.File, hex string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 9},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{hex}},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
}

func (s styleSet) forVerdict(v model.MatchVerdict) int {
	switch v {
	case model.Match:
		return s.match
	case model.Mismatch:
		return s.mismatch
	case model.BOMOnly:
		return s.bomOnly
	case model.DrawingOnly:
		return s.drawOnly
	default:
		return s.na
	}
}

// WriteWorkbook renders one sheet per BOM page plus a summary sheet to
// path, coloring each comparison row by its reconciliation verdict (green
// MATCH, amber MISMATCH, blue BOM_ONLY, orange DRAWING_ONLY, gray N/A).
func WriteWorkbook(session model.Session, pages []model.PageBOMRecord, comps []model.PageComparison, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := buildStyles(f)
	if err != nil {
		return fmt.Errorf("report: building styles: %w", err)
	}

	compByPage := make(map[int]model.PageComparison, len(comps))
	for _, c := range comps {
		compByPage[c.PageNumber] = c
	}

	if err := writeSummarySheet(f, styles, session, pages, compByPage); err != nil {
		return err
	}

	for _, p := range pages {
		if p.IsCover {
			continue
		}
		if err := writePageSheet(f, styles, p, compByPage[p.PageNumber]); err != nil {
			return fmt.Errorf("report: page %d sheet: %w", p.PageNumber, err)
		}
	}

	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: saving workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, styles styleSet, session model.Session, pages []model.PageBOMRecord, compByPage map[int]model.PageComparison) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("report: creating summary sheet: %w", err)
	}

	headers := []string{"Page", "Drawing No.", "Line No.", "Pipe No.", "Pipe Pieces",
		"Shop Welds", "Field Welds", "Total Length (mm)", "Match Rate"}
	writeHeaderRow(f, sheet, styles.header, headers)

	row := 2
	totalShop, totalField := 0, 0
	var totalLength float64
	for _, p := range pages {
		if p.IsCover {
			continue
		}
		cmp := compByPage[p.PageNumber]
		pieceList := ""
		for i, piece := range p.PipePieces {
			if i > 0 {
				pieceList += ", "
			}
			pieceList += piece.ID
		}
		var pageLength float64
		for _, d := range p.Dimensions {
			pageLength += d.LengthMM
		}
		totalShop += p.ShopWeldCount()
		totalField += p.FieldWeldCount()
		totalLength += pageLength

		cell := func(col int, v any) { setCell(f, sheet, row, col, v) }
		cell(1, p.PageNumber)
		cell(2, p.DrawingNumber)
		cell(3, p.LineNumber)
		cell(4, p.PipeNumber)
		cell(5, orDash(pieceList))
		cell(6, p.ShopWeldCount())
		cell(7, p.FieldWeldCount())
		cell(8, orDashF(pageLength))
		cell(9, matchRateLabel(cmp))
		applyRowStyle(f, sheet, row, len(headers), styles.data)
		row++
	}

	cell := func(col int, v any) { setCell(f, sheet, row, col, v) }
	cell(1, "TOTAL")
	cell(6, totalShop)
	cell(7, totalField)
	cell(8, orDashF(totalLength))
	applyRowStyle(f, sheet, row, len(headers), styles.total)

	setColumnWidths(f, sheet, columnWidths)
	return nil
}

func writePageSheet(f *excelize.File, styles styleSet, p model.PageBOMRecord, cmp model.PageComparison) error {
	sheet := fmt.Sprintf("Page %d", p.PageNumber)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Letter", "Qty", "Size", "Description", "Material",
		"Drawing Component", "Verdict", "Qty Diff", "Notes"}
	writeHeaderRow(f, sheet, styles.header, headers)

	verdictByLetter := make(map[string]model.ComparisonItem, len(cmp.ComparisonItems))
	for _, item := range cmp.ComparisonItems {
		if item.BOMLetter != "" {
			verdictByLetter[item.BOMLetter] = item
		}
	}

	row := 2
	for _, r := range p.BOMTable {
		item, hasComparison := verdictByLetter[r.LetterCode]

		cell := func(col int, v any) { setCell(f, sheet, row, col, v) }
		cell(1, r.LetterCode)
		cell(2, r.Quantity)
		cell(3, r.Size)
		cell(4, r.Description)
		cell(5, r.Material)
		verdict := model.NotApplicable
		if hasComparison {
			cell(6, item.DrawingComponent)
			cell(7, string(item.Verdict))
			cell(8, item.QuantityDiff)
			cell(9, item.Notes)
			verdict = item.Verdict
		} else {
			cell(7, string(model.NotApplicable))
		}
		applyRowStyle(f, sheet, row, len(headers), styles.forVerdict(verdict))
		row++
	}

	// Drawing-only components have no BOM row of their own; append them so
	// the sheet accounts for every comparison item, not just BOM rows.
	for _, item := range cmp.ComparisonItems {
		if item.Verdict != model.DrawingOnly {
			continue
		}
		cell := func(col int, v any) { setCell(f, sheet, row, col, v) }
		cell(4, "-")
		cell(6, item.DrawingComponent)
		cell(7, string(model.DrawingOnly))
		cell(8, item.QuantityDiff)
		cell(9, item.Notes)
		applyRowStyle(f, sheet, row, len(headers), styles.drawOnly)
		row++
	}

	setColumnWidths(f, sheet, columnWidths)
	return nil
}

func writeHeaderRow(f *excelize.File, sheet string, style int, headers []string) {
	for i, h := range headers {
		axis, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, axis, h)
	}
	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	f.SetCellStyle(sheet, "A1", lastCol, style)
}

func applyRowStyle(f *excelize.File, sheet string, row, lastCol, style int) {
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(lastCol, row)
	f.SetCellStyle(sheet, first, last, style)
}

func setCell(f *excelize.File, sheet string, row, col int, v any) {
	axis, _ := excelize.CoordinatesToCellName(col, row)
	f.SetCellValue(sheet, axis, v)
}

func setColumnWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orDashF(v float64) any {
	if v == 0 {
		return "-"
	}
	return v
}

func matchRateLabel(cmp model.PageComparison) string {
	if cmp.Summary.ComparableItems == 0 {
		return "-"
	}
	return strconv.FormatFloat(cmp.Summary.MatchRate, 'f', 1, 64) + "%"
}

// WriteValveWorkbook renders a P&ID session's extracted valves to a single
// sheet workbook. It intentionally does not replicate the piping-class
// design-condition lookup tables of the original valve-list generator,
// since those encode project-specific engineering defaults that have no
// home in the extracted data model; only fields actually derived from the
// drawing are written.
func WriteValveWorkbook(valves []model.ValveExtract, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := buildStyles(f)
	if err != nil {
		return fmt.Errorf("report: building styles: %w", err)
	}

	const sheet = "Valve List"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Tag", "Type", "Subtype", "Nominal Size", "Source Sheet", "Provenance"}
	writeHeaderRow(f, sheet, styles.header, headers)

	for i, v := range valves {
		row := i + 2
		cell := func(col int, val any) { setCell(f, sheet, row, col, val) }
		cell(1, v.Tag)
		cell(2, string(v.Type))
		cell(3, v.Subtype)
		cell(4, v.NominalSize)
		cell(5, v.SourceSheet)
		cell(6, string(v.Provenance))
		applyRowStyle(f, sheet, row, len(headers), styles.data)
	}

	setColumnWidths(f, sheet, []float64{14, 14, 26, 12, 12, 10})

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: saving valve workbook: %w", err)
	}
	return nil
}
