package pipeline

import (
	"strings"
	"testing"
)

const reportWithBlock = `The lesson opened with a warm-up on equivalent fractions.

---ADHERENCE---
{"score": 82.5, "summary": "Objective mostly met.", "evidence": ["compared 1/2 and 2/4", "exit ticket"]}
---END ADHERENCE---

Students responded well to the visual models.`

func TestExtractAdherenceWithObjective(t *testing.T) {
	block, cleaned := ExtractAdherence(reportWithBlock, true)
	if block == nil {
		t.Fatal("expected adherence block")
	}
	if block["score"] != 82.5 {
		t.Fatalf("unexpected score: %v", block["score"])
	}
	if strings.Contains(cleaned, adherenceStart) || strings.Contains(cleaned, adherenceEnd) {
		t.Fatalf("delimiters survived excision: %q", cleaned)
	}
	if !strings.Contains(cleaned, "warm-up on equivalent fractions") {
		t.Fatalf("report prose lost: %q", cleaned)
	}
	if !strings.Contains(cleaned, "visual models") {
		t.Fatalf("trailing prose lost: %q", cleaned)
	}
}

func TestExtractAdherenceWithoutObjectiveLeavesTextUntouched(t *testing.T) {
	block, cleaned := ExtractAdherence(reportWithBlock, false)
	if block != nil {
		t.Fatalf("expected nil block without objective, got %v", block)
	}
	if cleaned != reportWithBlock {
		t.Fatal("report text must be byte-identical without objective")
	}
}

func TestExtractAdherenceBlockAbsent(t *testing.T) {
	report := "Just a plain report with no structured block."
	block, cleaned := ExtractAdherence(report, true)
	if block != nil {
		t.Fatalf("expected nil block, got %v", block)
	}
	if cleaned != report {
		t.Fatal("report text must be unmodified when no block exists")
	}
}

func TestExtractAdherenceMalformedJSON(t *testing.T) {
	report := "intro ---ADHERENCE--- {not json} ---END ADHERENCE--- outro"
	block, cleaned := ExtractAdherence(report, true)
	if block != nil {
		t.Fatalf("expected nil block for malformed payload, got %v", block)
	}
	if cleaned != report {
		t.Fatal("report text must be unmodified on parse failure")
	}
}

func TestExtractAdherenceSchemaViolations(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing score", `{"summary": "ok"}`},
		{"score out of range", `{"score": 140, "summary": "ok"}`},
		{"score wrong type", `{"score": "82", "summary": "ok"}`},
		{"empty summary", `{"score": 50, "summary": "  "}`},
		{"evidence wrong type", `{"score": 50, "summary": "ok", "evidence": "none"}`},
		{"evidence mixed items", `{"score": 50, "summary": "ok", "evidence": ["a", 3]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := "a ---ADHERENCE--- " + tc.payload + " ---END ADHERENCE--- b"
			block, cleaned := ExtractAdherence(report, true)
			if block != nil {
				t.Fatalf("expected schema rejection, got %v", block)
			}
			if cleaned != report {
				t.Fatal("report text must be unmodified on schema violation")
			}
		})
	}
}
