package jsonrecover

import (
	"reflect"
	"testing"
)

func TestParse_FenceWrappedEqualsDirectParse(t *testing.T) {
	fenced := "```json\n[{\"a\":1},{\"a\":2}]\n```"
	direct := "[{\"a\":1},{\"a\":2}]"

	got, err := Parse(fenced)
	if err != nil {
		t.Fatalf("Parse(fenced): %v", err)
	}
	want, err := Parse(direct)
	if err != nil {
		t.Fatalf("Parse(direct): %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("fenced parse %v != direct parse %v", got, want)
	}
}

func TestParse_TruncatedArrayRecoversCompleteObjects(t *testing.T) {
	// Seed scenario 4 from spec §8: array truncated mid-object keeps the
	// first two complete objects and closes the array.
	raw := `[{"category":"VALVE","symbol_name":"gate"},{"category":"PIPING","symbol_name":"flange"},{"category":"OTHER"`

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	arr, ok := got.([]any)
	if !ok {
		t.Fatalf("expected array, got %T", got)
	}
	if len(arr) != 2 {
		t.Fatalf("expected 2 recovered elements, got %d", len(arr))
	}
}

func TestParse_DictWrapperUnwrapsSymbolsKey(t *testing.T) {
	raw := `{"symbols": [{"category":"VALVE"}]}`
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 1 {
		t.Fatalf("expected unwrapped 1-element array, got %#v", got)
	}
}

func TestParse_DictWrapperUnwrapsDataKey(t *testing.T) {
	raw := `{"data": [1,2,3]}`
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected unwrapped 3-element array, got %#v", got)
	}
}

func TestParse_EveryStrategyFails(t *testing.T) {
	_, err := Parse("not json at all, no braces")
	if err != ErrUnparseable {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}
