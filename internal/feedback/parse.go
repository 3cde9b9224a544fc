package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseError reports a model response that could not be decoded into the
// expected JSON shape, keeping the raw text for diagnostics.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// organizeResult is the wire shape of the by-criterion response.
type organizeResult struct {
	Summary           string            `json:"summary"`
	CriterionFeedback map[string]string `json:"criterion_feedback"`
}

// decodeOrganizeResponse extracts and decodes the JSON object from a model
// response. Models without a native JSON mode wrap the object in prose, so
// the outermost braces are located first; responses that are almost-JSON
// (trailing commas, single quotes) get one repair pass before failing.
func decodeOrganizeResponse(raw string) (organizeResult, error) {
	var result organizeResult

	jsonStr, ok := extractJSON(raw)
	if !ok {
		return result, &ParseError{Raw: raw, Err: errors.New("no JSON object in response")}
	}

	err := json.Unmarshal([]byte(jsonStr), &result)
	if err == nil {
		return normalizeResult(result), nil
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
		if repairErr == nil {
			if err2 := json.Unmarshal([]byte(repaired), &result); err2 == nil {
				return normalizeResult(result), nil
			}
		}
	}
	return result, &ParseError{Raw: raw, Err: err}
}

// normalizeResult applies defaults for keys the model omitted.
func normalizeResult(r organizeResult) organizeResult {
	if r.CriterionFeedback == nil {
		r.CriterionFeedback = map[string]string{}
	}
	return r
}

// extractJSON returns the substring from the first '{' to the last '}'.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
