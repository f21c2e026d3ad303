// Package model holds the shared data model (spec §3) used across
// pidscan's components: sessions, legend symbols, per-page BOM records,
// reconciliation comparison items, and P&ID valve/line extracts.
package model

import "github.com/brunobiangulo/pidscan/dxfspec"

// SessionKind is the detected kind of an uploaded document.
type SessionKind string

const (
	KindDXF     SessionKind = "dxf"
	KindPID     SessionKind = "pid"
	KindPipeBOM SessionKind = "pipe_bom"
	KindUnknown SessionKind = "pdf-unknown"
)

// SessionStatus is the session's lifecycle state. Per spec §9's redesign
// note, the error message is a separate field (Session.ErrorDetail), not
// embedded in the status string.
type SessionStatus string

const (
	StatusProcessing   SessionStatus = "processing"
	StatusVLMAnalyzing SessionStatus = "vlm_analyzing"
	StatusCompleted    SessionStatus = "completed"
	StatusError        SessionStatus = "error"
	StatusCancelled    SessionStatus = "cancelled"
)

// Session is created on upload, mutated only by the background worker, and
// never deleted automatically.
type Session struct {
	ID               string
	CreatedAt        string
	Kind             SessionKind
	OriginalFilename string
	Status           SessionStatus
	ErrorDetail      string // truncated to 200 chars, per spec §6 exit status
}

// SymbolCategory is the six-member legend symbol taxonomy (spec §3).
type SymbolCategory string

const (
	CategoryPiping         SymbolCategory = "PIPING"
	CategoryValve          SymbolCategory = "VALVE"
	CategoryActuator       SymbolCategory = "ACTUATOR"
	CategoryActuatedValve  SymbolCategory = "ACTUATED_VALVE"
	CategorySafetyDevice   SymbolCategory = "SAFETY_DEVICE"
	CategoryOther          SymbolCategory = "OTHER"
)

// BBox is a bounding box in fractional page coordinates, each in [0,1].
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// SymbolEntry is one harvested legend symbol. Descriptions are unique
// within a session after case-folding (spec §3 invariant). Created during
// legend harvest, consumed as reference context by downstream VLM calls,
// never mutated after persistence.
type SymbolEntry struct {
	Ordinal     int
	Category    SymbolCategory
	Code        string // optional short code
	Description string
	ImagePath   string // optional; if non-empty the file must exist and be non-zero size
	BBox        *BBox  // optional
}

// PipePiece is one pipe segment referenced on an isometric page.
type PipePiece struct {
	ID         string
	Size       string
	Schedule   string
	Material   string
	Provenance string // "vlm" or "text_extraction"
}

// Component is one drawing-reported component (valve, fitting, flange,
// support, instrument, ...). Type/Subtype stay open strings here (spec §9:
// the raw page record tolerates novel VLM strings); reconcile.Taxonomy
// closes them for comparison purposes.
type Component struct {
	Type        string
	Subtype     string
	Size        string
	Tag         string
	Description string
	Quantity    int
}

// WeldKind partitions a weld point by id prefix.
type WeldKind string

const (
	ShopWeld     WeldKind = "shop_weld"
	FieldFitWeld WeldKind = "field_fit_weld"
)

// WeldPoint is one weld marker on a page.
type WeldPoint struct {
	ID   string
	Kind WeldKind
}

// Dimension is a measured distance between two weld points.
type Dimension struct {
	From        string
	To          string
	LengthMM    float64
	Orientation string
	Source      string // "vlm" or "text"
}

// CutLength is one discrete pipe-cut segment.
type CutLength struct {
	CutNo    int
	LengthMM float64
}

// BOMRow is one row of the tabular bill of materials.
type BOMRow struct {
	LetterCode  string
	Quantity    string // free-form: "4", "9.5 M"
	Size        string
	Description string
	Material    string
	Weight      float64
	Remarks     string
}

// PageBOMRecord is the per-isometric-page extraction record (spec §3).
type PageBOMRecord struct {
	PageNumber       int
	IsCover          bool
	DrawingNumber    string
	LineNumber       string
	PipeNumber       string
	LineDescription  string
	PipePieces       []PipePiece
	Components       []Component
	WeldPoints       []WeldPoint
	Dimensions       []Dimension
	CutLengths       []CutLength
	BOMTable         []BOMRow
	WeldCountText    int
	WeldCountVLM     int
	DrawingAnalysisOK bool
	TableAnalysisOK   bool
	ErrorDetail       string
}

// ShopWeldCount and FieldWeldCount derive from WeldPoints, satisfying the
// invariant shop+field == total (spec §8).
func (p PageBOMRecord) ShopWeldCount() int {
	n := 0
	for _, w := range p.WeldPoints {
		if w.Kind == ShopWeld {
			n++
		}
	}
	return n
}

func (p PageBOMRecord) FieldWeldCount() int {
	n := 0
	for _, w := range p.WeldPoints {
		if w.Kind == FieldFitWeld {
			n++
		}
	}
	return n
}

// WeldCountCanonical reports the maximum of the text- and VLM-derived weld
// counts, per spec §4.3's text/VLM reconciliation rule.
func (p PageBOMRecord) WeldCountCanonical() int {
	if p.WeldCountText > p.WeldCountVLM {
		return p.WeldCountText
	}
	return p.WeldCountVLM
}

// MatchVerdict is a reconciled BOM row's or orphan drawing component's
// outcome (spec §3 ComparisonItem).
type MatchVerdict string

const (
	Match        MatchVerdict = "MATCH"
	Mismatch     MatchVerdict = "MISMATCH"
	BOMOnly      MatchVerdict = "BOM_ONLY"
	DrawingOnly  MatchVerdict = "DRAWING_ONLY"
	NotApplicable MatchVerdict = "N/A"
)

// ComparisonItem is one reconciled BOM row or orphan drawing component.
type ComparisonItem struct {
	BOMLetter        string
	BOMDescription   string
	BOMQuantity      string
	BOMSize          string
	DrawingComponent string // "type:subtype"
	DrawingQuantity  int
	HasDrawingQty    bool
	Verdict          MatchVerdict
	QuantityDiff     int
	Notes            string
}

// PageComparisonSummary aggregates verdict counts for one page.
type PageComparisonSummary struct {
	TotalBOMItems   int
	ComparableItems int
	Matched         int
	Mismatched      int
	BOMOnly         int
	DrawingOnly     int
	NAItems         int
	MatchRate       float64 // matched / comparable, rounded to 1 decimal; 0 when comparable==0
}

// PageComparison is the reconciler's per-page output (C7).
type PageComparison struct {
	PageNumber      int
	DrawingNumber   string
	LineNumber      string
	ComparisonItems []ComparisonItem
	Summary         PageComparisonSummary
}

// ValveType is the sum-of-kinds enum for P&ID valve extraction (spec §3).
type ValveType string

const (
	ValveButterfly ValveType = "BUTTERFLY"
	ValveGate      ValveType = "GATE"
	ValveGlobe     ValveType = "GLOBE"
	ValveCheck     ValveType = "CHECK"
	ValveBall      ValveType = "BALL"
	ValvePlug      ValveType = "PLUG"
	ValveNeedle    ValveType = "NEEDLE"
	ValveControl   ValveType = "CONTROL"
)

// Provenance records how a valve/line record was derived.
type Provenance string

const (
	ProvenanceRegex Provenance = "regex"
	ProvenanceVLM   Provenance = "vlm"
	ProvenanceBoth  Provenance = "both"
)

// ValveExtract is one valve tag found on a P&ID page.
type ValveExtract struct {
	Tag           string
	Type          ValveType
	Subtype       string
	NominalSize   string
	SourceSheet   int
	Provenance    Provenance
}

// LineSpec is a parsed piping line-specification tag, e.g.
// `10"-CSW-9103-CS3-40#150-NI` (spec GLOSSARY). The canonical definition
// lives in dxfspec, which is the data-contract home for the DXF side of the
// pipeline; it is aliased here so model callers don't need a second import.
type LineSpec = dxfspec.LineSpec

// DIMLFAC converts drawing-unit lengths to millimetres in the DXF pipeline.
// Out of core but persisted for cross-reference (spec GLOSSARY).
const DIMLFAC = dxfspec.DIMLFAC

// LineSpecProvenance mirrors dxfspec.Provenance for callers that only have
// a model import in scope.
type LineSpecProvenance = dxfspec.Provenance

const (
	LineSpecProvenanceRegex = dxfspec.ProvenanceRegex
	LineSpecProvenanceVLM   = dxfspec.ProvenanceVLM
	LineSpecProvenanceBoth  = dxfspec.ProvenanceBoth
)
