// Package feedback turns raw spoken-feedback transcripts into rubric-aligned
// documents by way of interchangeable language-model providers.
package feedback

import (
	"sort"
	"strings"

	"github.com/echomark/echomark/internal/rubric"
)

// DetailLevel controls how expansive the per-criterion feedback should be.
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailDetailed DetailLevel = "detailed"
)

// CriterionFeedback pairs one rubric criterion with its organized feedback
// text.
type CriterionFeedback struct {
	Criterion string `json:"criterion"`
	Feedback  string `json:"feedback"`
}

// OrganizedFeedback is the by-criterion organization result. Criteria keep
// rubric order; any extra keys the model invented follow, sorted by name.
type OrganizedFeedback struct {
	RubricName    string              `json:"rubric_name"`
	Summary       string              `json:"summary"`
	Criteria      []CriterionFeedback `json:"criteria"`
	RawTranscript string              `json:"raw_transcript,omitempty"`
}

// newOrganizedFeedback orders the model's criterion map against the rubric.
func newOrganizedFeedback(r *rubric.Rubric, summary string, byName map[string]string, rawTranscript string) *OrganizedFeedback {
	out := &OrganizedFeedback{
		RubricName:    r.Name,
		Summary:       summary,
		RawTranscript: rawTranscript,
	}
	seen := make(map[string]bool, len(byName))
	for _, c := range r.Criteria {
		if text, ok := byName[c.Name]; ok {
			out.Criteria = append(out.Criteria, CriterionFeedback{Criterion: c.Name, Feedback: text})
			seen[c.Name] = true
		}
	}
	var extras []string
	for name := range byName {
		if !seen[name] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		out.Criteria = append(out.Criteria, CriterionFeedback{Criterion: name, Feedback: byName[name]})
	}
	return out
}

// Markdown renders the feedback as a markdown document.
func (f *OrganizedFeedback) Markdown() string {
	lines := []string{"# Feedback: " + f.RubricName, ""}

	if f.Summary != "" {
		lines = append(lines, "## Summary", f.Summary, "")
	}

	lines = append(lines, "## Detailed Feedback", "")
	for _, cf := range f.Criteria {
		lines = append(lines, "### "+cf.Criterion, cf.Feedback, "")
	}

	if f.RawTranscript != "" {
		lines = append(lines, "---", "## Raw Transcript", f.RawTranscript)
	}
	return strings.Join(lines, "\n")
}

// PlainText renders the feedback for clipboard or console use.
func (f *OrganizedFeedback) PlainText() string {
	rule := strings.Repeat("=", 60)
	lines := []string{"FEEDBACK: " + f.RubricName, rule, ""}

	if f.Summary != "" {
		lines = append(lines, "SUMMARY:", f.Summary, "")
	}

	lines = append(lines, "DETAILED FEEDBACK:", strings.Repeat("-", 60))
	for _, cf := range f.Criteria {
		lines = append(lines, "\n"+cf.Criterion+":", cf.Feedback)
	}

	if f.RawTranscript != "" {
		lines = append(lines, "", rule, "RAW TRANSCRIPT:", f.RawTranscript)
	}
	return strings.Join(lines, "\n")
}

// StructuredFeedback is the free-form organization result: the model's
// response text is carried verbatim as the document body.
type StructuredFeedback struct {
	RubricName    string `json:"rubric_name"`
	FeedbackText  string `json:"feedback_text"`
	RawTranscript string `json:"raw_transcript,omitempty"`
}

func (f *StructuredFeedback) Markdown() string {
	lines := []string{"# Feedback: " + f.RubricName, "", f.FeedbackText}
	if f.RawTranscript != "" {
		lines = append(lines, "", "---", "## Raw Transcript", f.RawTranscript)
	}
	return strings.Join(lines, "\n")
}

func (f *StructuredFeedback) PlainText() string {
	rule := strings.Repeat("=", 60)
	lines := []string{"FEEDBACK: " + f.RubricName, rule, "", f.FeedbackText}
	if f.RawTranscript != "" {
		lines = append(lines, "", rule, "RAW TRANSCRIPT:", f.RawTranscript)
	}
	return strings.Join(lines, "\n")
}
