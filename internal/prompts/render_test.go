package prompts

import (
	"strings"
	"testing"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	tmpl := PromptTemplate{
		Name:    "coverage_analysis",
		Version: 1,
		Body:    "Analyze the {{subject}} lesson for grade {{gradeLevel}}.",
	}
	out, err := Render(tmpl, map[string]any{"subject": "math", "gradeLevel": "6"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Analyze the math lesson for grade 6." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderConditionalBlocks(t *testing.T) {
	tmpl := PromptTemplate{
		Name:    "report_generation",
		Version: 1,
		Body:    "{{#if hasObjective}}Objective: {{objective}}{{else}}No stated objective.{{/if}}",
	}

	out, err := Render(tmpl, map[string]any{"hasObjective": true, "objective": "fractions"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Objective: fractions" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = Render(tmpl, map[string]any{"hasObjective": false})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "No stated objective." {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderLogicalHelpers(t *testing.T) {
	tmpl := PromptTemplate{
		Name:    "exercise_generation",
		Version: 1,
		Body:    `{{#if (eq gradeLevel "6")}}sixth{{/if}}{{#if (and hasPlan hasObjective)}} both{{/if}}{{#if (or hasPlan hasObjective)}} some{{/if}}`,
	}
	out, err := Render(tmpl, map[string]any{
		"gradeLevel":   "6",
		"hasPlan":      true,
		"hasObjective": false,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "sixth some" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderMissingVariableIsEmpty(t *testing.T) {
	tmpl := PromptTemplate{
		Name:    "alert_detection",
		Version: 1,
		Body:    "Transcript: {{transcript}} Plan: {{lessonPlan}}",
	}
	out, err := Render(tmpl, map[string]any{"transcript": "hello"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Transcript: hello Plan: " {
		t.Fatalf("unresolved variable should render empty, got %q", out)
	}
	if strings.Contains(out, "{{") {
		t.Fatalf("output should not contain leftover placeholders: %q", out)
	}
}

func TestMissingVariablesScan(t *testing.T) {
	body := "{{a}} {{b.c}} {{#if a}}{{a}}{{/if}} {{else}}"
	missing := missingVariables(body, map[string]any{"a": 1})
	if len(missing) != 1 || missing[0] != "b.c" {
		t.Fatalf("expected [b.c], got %v", missing)
	}
}
