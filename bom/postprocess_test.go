package bom

import (
	"testing"
)

func TestPostprocessBOMItemsRecoversEmbeddedLetterCode(t *testing.T) {
	raw := []rawBOMItem{
		{LetterCode: "", Description: "A PIPE SCH 40", Quantity: "4"},
		{LetterCode: "", Description: "LENGTH"},
		{LetterCode: "", Description: "1200 MM <2>"},
		{LetterCode: "B", Description: "GATE VALVE", Quantity: "1", Weight: 12.5},
	}
	out := postprocessBOMItems(raw)
	if len(out) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d: %+v", len(out), out)
	}
	if out[0].LetterCode != "A" || out[0].Description != "PIPE SCH 40" {
		t.Fatalf("expected recovered letter code A, got %+v", out[0])
	}
	if out[1].Weight != 12.5 {
		t.Fatalf("expected weight coerced to 12.5, got %v", out[1].Weight)
	}
}

func TestPostprocessCutLengthsMergesExplicitAndMixedIn(t *testing.T) {
	explicit := []rawCutLength{{CutNo: 1.0, LengthMM: 800.0}}
	bomRaw := []rawBOMItem{
		{LetterCode: "A", Description: "PIPE"},
		{LetterCode: "", Description: "1200 MM <2>"},
		{LetterCode: "", Description: "900 MM"},
	}
	out := postprocessCutLengths(explicit, bomRaw)
	if len(out) != 3 {
		t.Fatalf("expected 3 cut lengths, got %d: %+v", len(out), out)
	}
	if out[0].CutNo != 1 || out[1].CutNo != 2 {
		t.Fatalf("expected sorted cut numbers 1,2,..., got %+v", out)
	}
	if out[2].LengthMM != 900 {
		t.Fatalf("expected the no-bracket cut to land at 900mm, got %+v", out[2])
	}
}

func TestQuantityToStringHandlesNumericAndUnitSuffixed(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"int-valued float", 4.0, "4"},
		{"fractional float", 9.5, "9.5"},
		{"already string", "9.5 M", "9.5 M"},
		{"nil", nil, ""},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := quantityToString(tt.in); got != tt.want {
				t.Errorf("quantityToString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
