package pipeline

import (
	"encoding/json"
	"strings"
)

// Delimiters the report template instructs the model to wrap its curriculum
// adherence block with.
const (
	adherenceStart = "---ADHERENCE---"
	adherenceEnd   = "---END ADHERENCE---"
)

// ExtractAdherence scans the report text for a delimited adherence block.
// On success it returns the parsed object and the report text with the block
// excised. On any failure (no declared objective, block absent, malformed
// JSON, schema violation) it returns nil and the report text unmodified.
func ExtractAdherence(report string, hasObjective bool) (map[string]any, string) {
	if !hasObjective {
		return nil, report
	}

	start := strings.Index(report, adherenceStart)
	if start < 0 {
		return nil, report
	}
	rest := report[start+len(adherenceStart):]
	end := strings.Index(rest, adherenceEnd)
	if end < 0 {
		return nil, report
	}

	payload := strings.TrimSpace(rest[:end])
	var block map[string]any
	if err := json.Unmarshal([]byte(payload), &block); err != nil {
		return nil, report
	}
	if !validAdherence(block) {
		return nil, report
	}

	cleaned := report[:start] + rest[end+len(adherenceEnd):]
	return block, strings.TrimSpace(cleaned)
}

// validAdherence checks the block shape: a numeric score in [0, 100], a
// non-empty summary, and, when present, evidence as a list of strings.
func validAdherence(block map[string]any) bool {
	score, ok := block["score"].(float64)
	if !ok || score < 0 || score > 100 {
		return false
	}
	summary, ok := block["summary"].(string)
	if !ok || strings.TrimSpace(summary) == "" {
		return false
	}
	if raw, present := block["evidence"]; present {
		items, ok := raw.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return false
			}
		}
	}
	return true
}
