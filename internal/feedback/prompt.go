package feedback

import (
	"fmt"
	"strings"

	"github.com/echomark/echomark/internal/rubric"
)

// buildOrganizePrompt produces the by-criterion organization prompt. The
// response contract is a strict JSON object so every backend can be parsed
// the same way.
func buildOrganizePrompt(transcript string, r *rubric.Rubric, detail DetailLevel) string {
	var criteria strings.Builder
	for i, c := range r.Criteria {
		if i > 0 {
			criteria.WriteString("\n")
		}
		fmt.Fprintf(&criteria, "- %s: %s", c.Name, criterionDescription(c))
	}

	detailInstruction := "Provide detailed, constructive feedback for each criterion with specific examples from the transcript."
	if detail == DetailBrief {
		detailInstruction = "Provide concise, actionable feedback for each criterion."
	}

	return fmt.Sprintf(`You are organizing verbal feedback that a teacher has recorded. Your task is to organize this feedback according to the provided rubric criteria.

The feedback should be written in FIRST PERSON, as if the teacher is speaking directly to the student (use "I", "my observations", "I noticed", etc.).

RUBRIC: %s
%s

CRITERIA:
%s

TEACHER'S VERBAL FEEDBACK (TRANSCRIPT):
%s

INSTRUCTIONS:
1. Analyze the transcript and identify feedback related to each rubric criterion
2. %s
3. If the teacher didn't mention a specific criterion, note that it wasn't addressed
4. Write in FIRST PERSON perspective - as if the teacher is speaking directly ("I think...", "I noticed...", "In my view...")
5. Maintain the teacher's conversational tone and specific comments
6. Provide a brief overall summary (2-3 sentences) in first person

OUTPUT FORMAT:
Return your response in the following JSON format:
{
    "summary": "Brief overall summary in first person (e.g., 'I found your work...')",
    "criterion_feedback": {
        "Criterion Name 1": "Feedback in first person for this criterion",
        "Criterion Name 2": "Feedback in first person for this criterion"
    }
}

IMPORTANT: All feedback must be written in first person, as if the teacher is speaking directly to the student.

Ensure all criterion names from the rubric are included in your response, even if the teacher didn't explicitly address them (in which case note "I didn't address this in my feedback" or similar).
`, r.Name, r.Description, criteria.String(), transcript, detailInstruction)
}

// buildStructuredPrompt concatenates the caller's instruction template with a
// rendered rubric block and the transcript.
func buildStructuredPrompt(transcript string, r *rubric.Rubric, instructionPrompt string) string {
	var rubricText strings.Builder
	fmt.Fprintf(&rubricText, "%s\n%s\n\nCriteria:\n", r.Name, r.Description)
	for _, c := range r.Criteria {
		fmt.Fprintf(&rubricText, "- **%s**: %s\n", c.Name, criterionDescription(c))
	}

	return fmt.Sprintf(`%s

---

RUBRIC:
%s

TRANSCRIPT:
%s
`, instructionPrompt, rubricText.String(), transcript)
}

// criterionDescription renders either the free-text description or, for
// analytic criteria, the performance-level bands.
func criterionDescription(c rubric.Criterion) string {
	if len(c.PerformanceLevels) == 0 {
		return c.Description
	}
	parts := make([]string, len(c.PerformanceLevels))
	for i, pl := range c.PerformanceLevels {
		parts[i] = fmt.Sprintf("%s [%s]: %s", pl.Name, pl.ScoreRange, pl.Description)
	}
	return strings.Join(parts, "; ")
}
