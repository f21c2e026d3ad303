package pid

import (
	"testing"

	"github.com/brunobiangulo/pidscan/dxfspec"
	"github.com/brunobiangulo/pidscan/model"
)

func TestDecodeVLMValvesSkipsBlankTagsAndNormalizesSize(t *testing.T) {
	raw := []any{
		map[string]any{"tag": "csw9112", "valve_type": "butterfly", "size": "12"},
		map[string]any{"tag": ""},
		map[string]any{"tag": "csw9112", "valve_type": "butterfly", "size": "12"}, // dup
	}
	valves := decodeVLMValves(raw, 2)
	if len(valves) != 1 {
		t.Fatalf("expected 1 deduped valve, got %d: %+v", len(valves), valves)
	}
	v := valves[0]
	if v.Tag != "CSW9112" {
		t.Errorf("tag = %q, want CSW9112", v.Tag)
	}
	if v.NominalSize != `12"` {
		t.Errorf("nominal size = %q, want 12\"", v.NominalSize)
	}
	if v.Provenance != model.ProvenanceVLM {
		t.Errorf("provenance = %s, want vlm", v.Provenance)
	}
	if v.SourceSheet != 2 {
		t.Errorf("source sheet = %d, want 2", v.SourceSheet)
	}
}

func TestDecodeVLMLineSpecsFallsBackToFullSpecAsKey(t *testing.T) {
	raw := []any{
		map[string]any{"full_spec": `10"-CSW-9103-CS3-40#150-NI`},
	}
	specs := decodeVLMLineSpecs(raw, 3)
	if len(specs) != 1 {
		t.Fatalf("expected 1 line spec, got %d", len(specs))
	}
	if specs[0].PipingClass != "CS3" {
		t.Errorf("piping class default = %q, want CS3", specs[0].PipingClass)
	}
	if specs[0].Provenance != dxfspec.ProvenanceVLM {
		t.Errorf("provenance = %s, want vlm", specs[0].Provenance)
	}
}

func TestMergeValvesTagsBothWhenFoundByBothPasses(t *testing.T) {
	regexValves := []model.ValveExtract{
		{Tag: "CSW9112", Type: model.ValveButterfly, Provenance: model.ProvenanceRegex, NominalSize: `12"`},
		{Tag: "FCV9210", Type: model.ValveControl, Provenance: model.ProvenanceRegex},
	}
	vlmValves := []model.ValveExtract{
		{Tag: "CSW9112", Type: model.ValveButterfly, Provenance: model.ProvenanceVLM},
		{Tag: "TCV1001", Type: model.ValveControl, Provenance: model.ProvenanceVLM},
	}

	merged := MergeValves(regexValves, vlmValves)
	if len(merged) != 3 {
		t.Fatalf("expected 3 merged valves, got %d: %+v", len(merged), merged)
	}

	byTag := make(map[string]model.ValveExtract, len(merged))
	for _, v := range merged {
		byTag[v.Tag] = v
	}

	both, ok := byTag["CSW9112"]
	if !ok {
		t.Fatalf("missing CSW9112 in merge result")
	}
	if both.Provenance != model.ProvenanceBoth {
		t.Errorf("CSW9112 provenance = %s, want both", both.Provenance)
	}
	if both.NominalSize != `12"` {
		t.Errorf("CSW9112 nominal size = %q, want regex value 12\" filled in", both.NominalSize)
	}

	regexOnly, ok := byTag["FCV9210"]
	if !ok || regexOnly.Provenance != model.ProvenanceRegex {
		t.Errorf("FCV9210 should remain regex-only, got %+v ok=%v", regexOnly, ok)
	}

	vlmOnly, ok := byTag["TCV1001"]
	if !ok || vlmOnly.Provenance != model.ProvenanceVLM {
		t.Errorf("TCV1001 should remain vlm-only, got %+v ok=%v", vlmOnly, ok)
	}
}

func TestMergeLineSpecsKeysOnLineNumber(t *testing.T) {
	regexSpecs := []dxfspec.LineSpec{
		{LineNumber: "9103", Raw: `10"-CSW-9103-CS3-40#150-NI`, Provenance: dxfspec.ProvenanceRegex},
		{LineNumber: "8101", Raw: `6"-CFW-8101-CS2-STD#150-NI`, Provenance: dxfspec.ProvenanceRegex},
	}
	vlmSpecs := []dxfspec.LineSpec{
		{LineNumber: "9103", Raw: `10"-CSW-9103-CS3-40#150-NI`, Provenance: dxfspec.ProvenanceVLM},
	}

	merged := MergeLineSpecs(regexSpecs, vlmSpecs)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged line specs, got %d: %+v", len(merged), merged)
	}
	byLine := make(map[string]dxfspec.LineSpec, len(merged))
	for _, s := range merged {
		byLine[s.LineNumber] = s
	}
	if byLine["9103"].Provenance != dxfspec.ProvenanceBoth {
		t.Errorf("9103 provenance = %s, want both", byLine["9103"].Provenance)
	}
	if byLine["8101"].Provenance != dxfspec.ProvenanceRegex {
		t.Errorf("8101 provenance = %s, want regex", byLine["8101"].Provenance)
	}
}
