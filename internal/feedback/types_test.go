package feedback

import (
	"strings"
	"testing"

	"github.com/echomark/echomark/internal/rubric"
)

func twoCriterionRubric() *rubric.Rubric {
	return &rubric.Rubric{
		Name: "Essay",
		Criteria: []rubric.Criterion{
			{Name: "Content", Description: "Ideas and evidence"},
			{Name: "Grammar", Description: "Mechanics"},
		},
	}
}

func TestOrganizedFeedbackKeepsRubricOrder(t *testing.T) {
	r := twoCriterionRubric()
	byName := map[string]string{
		"Grammar": "C2",
		"Content": "C1",
	}
	f := newOrganizedFeedback(r, "S", byName, "")

	if len(f.Criteria) != 2 {
		t.Fatalf("expected 2 criteria, got %d", len(f.Criteria))
	}
	if f.Criteria[0].Criterion != "Content" || f.Criteria[1].Criterion != "Grammar" {
		t.Fatalf("criteria out of rubric order: %+v", f.Criteria)
	}

	md := f.Markdown()
	if !strings.Contains(md, "# Feedback: Essay") ||
		!strings.Contains(md, "## Summary\nS") ||
		!strings.Contains(md, "### Content\nC1") ||
		!strings.Contains(md, "### Grammar\nC2") {
		t.Fatalf("markdown missing sections:\n%s", md)
	}
	if strings.Index(md, "### Content") > strings.Index(md, "### Grammar") {
		t.Fatal("markdown sections out of rubric order")
	}

	txt := f.PlainText()
	if !strings.Contains(txt, "FEEDBACK: Essay") ||
		!strings.Contains(txt, "SUMMARY:\nS") ||
		!strings.Contains(txt, "Content:\nC1") ||
		!strings.Contains(txt, "Grammar:\nC2") {
		t.Fatalf("plain text missing sections:\n%s", txt)
	}
}

func TestOrganizedFeedbackExtraKeysSortedAfter(t *testing.T) {
	r := twoCriterionRubric()
	byName := map[string]string{
		"Grammar":  "C2",
		"Zebra":    "Z",
		"Aardvark": "A",
		"Content":  "C1",
	}
	f := newOrganizedFeedback(r, "", byName, "")
	got := make([]string, len(f.Criteria))
	for i, cf := range f.Criteria {
		got[i] = cf.Criterion
	}
	want := []string{"Content", "Grammar", "Aardvark", "Zebra"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestOrganizedFeedbackOmitsEmptySections(t *testing.T) {
	f := newOrganizedFeedback(twoCriterionRubric(), "", map[string]string{}, "")
	md := f.Markdown()
	if strings.Contains(md, "## Summary") {
		t.Fatal("markdown should omit empty summary")
	}
	if strings.Contains(md, "Raw Transcript") {
		t.Fatal("markdown should omit absent transcript")
	}
}

func TestOrganizedFeedbackIncludesRawTranscript(t *testing.T) {
	f := newOrganizedFeedback(twoCriterionRubric(), "S", map[string]string{"Content": "C1"}, "the raw words")
	if !strings.Contains(f.Markdown(), "## Raw Transcript\nthe raw words") {
		t.Fatal("markdown missing raw transcript")
	}
	if !strings.Contains(f.PlainText(), "RAW TRANSCRIPT:\nthe raw words") {
		t.Fatal("plain text missing raw transcript")
	}
}

func TestStructuredFeedbackRendering(t *testing.T) {
	f := &StructuredFeedback{
		RubricName:   "Essay",
		FeedbackText: "## Strengths\nClear thesis.",
	}
	md := f.Markdown()
	if !strings.HasPrefix(md, "# Feedback: Essay") || !strings.Contains(md, "Clear thesis.") {
		t.Fatalf("unexpected markdown:\n%s", md)
	}
	txt := f.PlainText()
	if !strings.HasPrefix(txt, "FEEDBACK: Essay") || !strings.Contains(txt, "Clear thesis.") {
		t.Fatalf("unexpected plain text:\n%s", txt)
	}
}
