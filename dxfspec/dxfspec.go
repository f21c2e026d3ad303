// Package dxfspec is the data-contract home for the DXF-side line
// specification shape and unit constant that pidscan's P&ID/BOM extraction
// cross-references. It ships no DXF geometry engine: rendering to CAD
// formats and geometric CAD analysis beyond reverse-scaling a length are
// out of scope, so only the shared types and the one conversion constant
// live here. Kept dependency-free (no import of model) so model can alias
// back into it without an import cycle.
package dxfspec

// Provenance records how a line-spec record was derived.
type Provenance string

const (
	ProvenanceRegex Provenance = "regex"
	ProvenanceVLM   Provenance = "vlm"
	ProvenanceBoth  Provenance = "both"
)

// LineSpec is a parsed piping line-specification tag, e.g.
// `10"-CSW-9103-CS3-40#150-NI` (spec GLOSSARY).
type LineSpec struct {
	Raw            string
	NominalSize    string
	PipingClass    string
	LineNumber     string
	Schedule       string
	PressureRating string
	MaterialCode   string
	FluidFamily    string
	SourceSheet    int
	Provenance     Provenance
}

// DIMLFAC converts drawing-unit lengths to millimetres, as read off the
// original AutoCAD-derived isometric templates. Out of core (no DXF
// geometry engine ships here) but persisted for cross-reference.
const DIMLFAC = 75.01875305175781
