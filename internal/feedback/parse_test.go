package feedback

import (
	"errors"
	"testing"
)

func TestDecodeOrganizeResponse(t *testing.T) {
	raw := `{"summary": "S", "criterion_feedback": {"Content": "C1", "Grammar": "C2"}}`
	result, err := decodeOrganizeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Summary != "S" {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
	if result.CriterionFeedback["Content"] != "C1" || result.CriterionFeedback["Grammar"] != "C2" {
		t.Fatalf("unexpected criterion feedback %v", result.CriterionFeedback)
	}
}

func TestDecodeExtractsObjectFromProse(t *testing.T) {
	raw := "Here is the organized feedback you asked for:\n\n" +
		`{"summary": "Good work", "criterion_feedback": {"Delivery": "Strong pacing"}}` +
		"\n\nLet me know if you need anything else."
	result, err := decodeOrganizeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Summary != "Good work" {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
}

func TestDecodeRepairsAlmostJSON(t *testing.T) {
	// Trailing comma is invalid JSON but repairable.
	raw := `{"summary": "S", "criterion_feedback": {"Content": "C1",}}`
	result, err := decodeOrganizeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.CriterionFeedback["Content"] != "C1" {
		t.Fatalf("unexpected criterion feedback %v", result.CriterionFeedback)
	}
}

func TestDecodeDefaultsMissingKeys(t *testing.T) {
	result, err := decodeOrganizeResponse(`{}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Summary != "" {
		t.Fatalf("expected empty summary, got %q", result.Summary)
	}
	if result.CriterionFeedback == nil || len(result.CriterionFeedback) != 0 {
		t.Fatalf("expected empty map, got %v", result.CriterionFeedback)
	}
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	for _, raw := range []string{"no object here", "", "} backwards {"} {
		_, err := decodeOrganizeResponse(raw)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%q: expected ParseError, got %v", raw, err)
		}
	}
}
