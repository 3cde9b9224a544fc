// Package rubric defines the assessment rubric model consumed by the
// feedback organizer. Rubrics are authored elsewhere and read here as JSON.
package rubric

import (
	"encoding/json"
	"fmt"
	"os"
)

// PerformanceLevel is one named band of an analytic criterion, carrying a
// score-range label such as "4 (90-100)".
type PerformanceLevel struct {
	Name        string `json:"name"`
	ScoreRange  string `json:"score_range"`
	Description string `json:"description"`
}

// Criterion is a single assessable dimension. Simple criteria carry a
// free-text description; analytic criteria carry performance levels instead.
type Criterion struct {
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Weight            float64            `json:"weight,omitempty"`
	PerformanceLevels []PerformanceLevel `json:"performance_levels,omitempty"`
}

// Rubric is an ordered set of criteria under a name. Criterion order is
// meaningful and preserved through feedback organization.
type Rubric struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Criteria    []Criterion `json:"criteria"`
}

// FromJSON decodes a rubric document.
func FromJSON(data []byte) (*Rubric, error) {
	var r Rubric
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode rubric: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadFile loads a rubric from a JSON file on disk.
func ReadFile(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric file: %w", err)
	}
	return FromJSON(data)
}

func (r *Rubric) validate() error {
	if r.Name == "" {
		return fmt.Errorf("rubric: name is required")
	}
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric %q: at least one criterion is required", r.Name)
	}
	seen := make(map[string]bool, len(r.Criteria))
	for i, c := range r.Criteria {
		if c.Name == "" {
			return fmt.Errorf("rubric %q: criterion %d has no name", r.Name, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("rubric %q: duplicate criterion %q", r.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// CriterionNames returns the criterion names in rubric order.
func (r *Rubric) CriterionNames() []string {
	names := make([]string, len(r.Criteria))
	for i, c := range r.Criteria {
		names[i] = c.Name
	}
	return names
}

// Essay is a general-purpose starter rubric for written assignments.
func Essay() *Rubric {
	return &Rubric{
		Name:        "Essay Rubric",
		Description: "General rubric for essay assignments",
		Criteria: []Criterion{
			{Name: "Content", Description: "Quality and relevance of ideas, arguments, and evidence", Weight: 2.0},
			{Name: "Organization", Description: "Structure, flow, and logical progression of ideas", Weight: 1.5},
			{Name: "Grammar & Mechanics", Description: "Spelling, punctuation, and sentence structure", Weight: 1.0},
			{Name: "Style & Clarity", Description: "Writing clarity, word choice, and tone", Weight: 1.0},
			{Name: "Research & Citations", Description: "Use of sources and proper citation format", Weight: 1.5},
		},
	}
}

// Presentation is a general-purpose starter rubric for oral presentations.
func Presentation() *Rubric {
	return &Rubric{
		Name:        "Presentation Rubric",
		Description: "General rubric for oral presentations",
		Criteria: []Criterion{
			{Name: "Content Knowledge", Description: "Depth and accuracy of subject matter", Weight: 2.0},
			{Name: "Organization", Description: "Clear structure with intro, body, and conclusion", Weight: 1.5},
			{Name: "Delivery", Description: "Voice, pace, eye contact, and body language", Weight: 1.5},
			{Name: "Visual Aids", Description: "Quality and effectiveness of slides/materials", Weight: 1.0},
			{Name: "Engagement", Description: "Ability to engage audience and handle questions", Weight: 1.0},
		},
	}
}
