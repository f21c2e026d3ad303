package pid

import (
	"testing"

	"github.com/brunobiangulo/pidscan/model"
)

func TestExtractValvesTagsAndTypes(t *testing.T) {
	lines := []string{
		`LINE 10"-CSW-9103-CS3-40#150-NI FROM PUMP TO COOLER`,
		`CSW9103A BUTTERFLY VALVE MANUAL`,
		`FCV9210 FLOW CONTROL VALVE ON DISCHARGE HEADER`,
		`CSW9103A SHOWN AGAIN ON DETAIL VIEW`,
	}

	valves := ExtractValves(lines, 3)
	if len(valves) != 2 {
		t.Fatalf("expected 2 distinct valves, got %d: %+v", len(valves), valves)
	}

	var manual, control *model.ValveExtract
	for i := range valves {
		switch valves[i].Tag {
		case "CSW9103A":
			manual = &valves[i]
		case "FCV9210":
			control = &valves[i]
		}
	}
	if manual == nil || control == nil {
		t.Fatalf("missing expected tags in %+v", valves)
	}
	if manual.Type != model.ValveButterfly {
		t.Errorf("manual valve type = %s, want BUTTERFLY", manual.Type)
	}
	if control.Type != model.ValveControl {
		t.Errorf("control valve type = %s, want CONTROL", control.Type)
	}
	if control.Subtype != "FLOW CONTROL VALVE" {
		t.Errorf("control subtype = %q, want FLOW CONTROL VALVE", control.Subtype)
	}
	for _, v := range valves {
		if v.SourceSheet != 3 {
			t.Errorf("source sheet = %d, want 3", v.SourceSheet)
		}
		if v.Provenance != model.ProvenanceRegex {
			t.Errorf("provenance = %s, want regex", v.Provenance)
		}
	}
}

func TestExtractValvesEmpty(t *testing.T) {
	if got := ExtractValves(nil, 1); got != nil {
		t.Errorf("expected nil for empty input, got %+v", got)
	}
}

func TestExtractLineSpecs(t *testing.T) {
	lines := []string{`LINE 10"-CSW-9103-CS3-40#150-NI FROM PUMP TO COOLER`}
	specs := ExtractLineSpecs(lines, 5)
	if len(specs) != 1 {
		t.Fatalf("expected 1 line spec, got %d: %+v", len(specs), specs)
	}
	s := specs[0]
	if s.NominalSize != "10" {
		t.Errorf("nominal size = %q, want 10", s.NominalSize)
	}
	if s.LineNumber != "9103" {
		t.Errorf("line number = %q, want 9103", s.LineNumber)
	}
	if s.PipingClass != "CS3" {
		t.Errorf("piping class = %q, want CS3", s.PipingClass)
	}
	if s.SourceSheet != 5 {
		t.Errorf("source sheet = %d, want 5", s.SourceSheet)
	}
}

func TestExtractLineSpecsDefaultsWhenSuffixMissing(t *testing.T) {
	lines := []string{`4"-FW-2201`}
	specs := ExtractLineSpecs(lines, 1)
	if len(specs) != 1 {
		t.Fatalf("expected 1 line spec, got %d", len(specs))
	}
	if specs[0].PipingClass != "CS3" {
		t.Errorf("expected default piping class CS3, got %q", specs[0].PipingClass)
	}
	if specs[0].Schedule != "STD" {
		t.Errorf("expected default schedule STD, got %q", specs[0].Schedule)
	}
}
