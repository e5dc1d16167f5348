package phone

import (
	"reflect"
	"testing"
)

func TestNormalizeStripsSuffix(t *testing.T) {
	got := Normalize("255700000000@s.whatsapp.net")
	if got != "255700000000" {
		t.Fatalf("expected 255700000000, got %q", got)
	}
}

func TestNormalizeKeepsLeadingPlus(t *testing.T) {
	got := Normalize("+255 700-000-000")
	if got != "+255700000000" {
		t.Fatalf("expected +255700000000, got %q", got)
	}
}

func TestNormalizeDropsInnerPlus(t *testing.T) {
	got := Normalize("255+700000000")
	if got != "255700000000" {
		t.Fatalf("expected 255700000000, got %q", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	if got := Normalize("abc@g.us"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestVariants(t *testing.T) {
	got := Variants("255700000000")
	want := []string{"255700000000", "+255700000000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestVariantsPlusPrefixed(t *testing.T) {
	got := Variants("+255700000000")
	want := []string{"+255700000000", "255700000000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestVariantsEmpty(t *testing.T) {
	if got := Variants(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
