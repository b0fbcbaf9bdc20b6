package pipeline

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"classroom-backend/internal/lessons"
	"classroom-backend/internal/prompts"
	"classroom-backend/internal/provider"
	"classroom-backend/internal/routing"
)

type scriptedGenerator struct {
	outputs  map[string]string
	costs    map[string]float64
	failAt   string
	seenKeys []string
	prompts  map[string]string
}

func (g *scriptedGenerator) InvokeWithFallback(ctx context.Context, key, prompt string, opts provider.GenerateOptions) (provider.Result, error) {
	g.seenKeys = append(g.seenKeys, key)
	if g.prompts == nil {
		g.prompts = make(map[string]string)
	}
	g.prompts[key] = prompt
	if key == g.failAt {
		return provider.Result{}, errors.New(`capability "` + key + `" failed on primary "openai" (boom) and fallback "gemini" (boom)`)
	}
	return provider.Result{
		Text:       g.outputs[key],
		ProviderID: "openai",
		CostUSD:    g.costs[key],
	}, nil
}

func seedTemplates(t *testing.T) *prompts.Service {
	t.Helper()
	repo := prompts.NewMemoryRepo()
	bodies := map[string]string{
		routing.KeyCoverageAnalysis:    "Topics covered in this {{subject}} lesson ({{gradeLevel}}):\n{{transcript}}",
		routing.KeyQualitativeAnalysis: "Assess teaching quality given coverage:\n{{coverage_analysis}}",
		routing.KeyReportGeneration:    "Write a parent-readable report.{{#if hasObjective}} Objective: {{objective}}{{/if}}\n{{qualitative_analysis}}",
		routing.KeyExerciseGeneration:  "Generate exercises from:\n{{report_generation}}",
		routing.KeyAlertDetection:      "Flag concerns in:\n{{transcript}}",
	}
	for name, body := range bodies {
		err := repo.Create(context.Background(), prompts.PromptTemplate{
			Name:    name,
			Version: 1,
			Body:    body,
			Active:  true,
		})
		if err != nil {
			t.Fatalf("seed template %s: %v", name, err)
		}
	}
	return prompts.NewService(repo)
}

func seedLesson(t *testing.T, repo lessons.Repo, objective string) lessons.Lesson {
	t.Helper()
	lesson := lessons.Lesson{
		ID:             "6f0d2f4e-8a84-4a5e-9a25-8e6f2f1b7c01",
		SchoolID:       "school-1",
		Title:          "Comparing fractions",
		GradeLevel:     "4th grade",
		Subject:        "math",
		Objective:      objective,
		TranscriptText: "Teacher: today we compare one half and two fourths.",
		CurriculumText: "Unit 4, lesson 2: equivalent fractions.",
		Status:         lessons.StatusTranscribed,
	}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed lesson: %v", err)
	}
	return lesson
}

func defaultOutputs() (map[string]string, map[string]float64) {
	outputs := map[string]string{
		routing.KeyCoverageAnalysis:    `{"topics": ["equivalent fractions"], "coveragePct": 80}`,
		routing.KeyQualitativeAnalysis: "Strong use of visual models; pacing rushed near the end.",
		routing.KeyReportGeneration:    "The class explored equivalent fractions with visual models.",
		routing.KeyExerciseGeneration:  `[{"prompt": "Is 1/2 equal to 2/4?", "answer": "yes"}]`,
		routing.KeyAlertDetection:      `{"alerts": []}`,
	}
	costs := map[string]float64{
		routing.KeyCoverageAnalysis:    0.02,
		routing.KeyQualitativeAnalysis: 0.025,
		routing.KeyReportGeneration:    0.015,
		routing.KeyExerciseGeneration:  0.005,
		routing.KeyAlertDetection:      0.02,
	}
	return outputs, costs
}

func TestRunAccumulatesContextAcrossStages(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")
	outputs, costs := defaultOutputs()
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	if _, err := orch.Run(context.Background(), lesson.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		routing.KeyCoverageAnalysis,
		routing.KeyQualitativeAnalysis,
		routing.KeyReportGeneration,
		routing.KeyExerciseGeneration,
		routing.KeyAlertDetection,
	}
	if len(gen.seenKeys) != len(want) {
		t.Fatalf("expected %d stage calls, got %v", len(want), gen.seenKeys)
	}
	for i, key := range want {
		if gen.seenKeys[i] != key {
			t.Fatalf("stage order mismatch at %d: got %s want %s", i, gen.seenKeys[i], key)
		}
	}

	// Stage 3's prompt must carry stage 2's output.
	if !strings.Contains(gen.prompts[routing.KeyReportGeneration], "visual models; pacing rushed") {
		t.Fatalf("report prompt missing qualitative output: %q", gen.prompts[routing.KeyReportGeneration])
	}
	// Stage 4's prompt must carry stage 3's output.
	if !strings.Contains(gen.prompts[routing.KeyExerciseGeneration], "explored equivalent fractions") {
		t.Fatalf("exercise prompt missing report output: %q", gen.prompts[routing.KeyExerciseGeneration])
	}
	// Supplied variables must not leave placeholders behind.
	for key, prompt := range gen.prompts {
		if strings.Contains(prompt, "{{") {
			t.Fatalf("unrendered placeholder in %s prompt: %q", key, prompt)
		}
	}
}

func TestRunSumsStageCostsExactly(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")
	outputs, costs := defaultOutputs()
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	result, err := orch.Run(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if math.Abs(result.TotalCostUSD-0.085) > 1e-9 {
		t.Fatalf("expected total cost 0.085, got %v", result.TotalCostUSD)
	}
	var sum float64
	for _, c := range result.StageCosts {
		sum += c
	}
	if math.Abs(result.TotalCostUSD-sum) > 1e-9 {
		t.Fatalf("total %v does not match stage sum %v", result.TotalCostUSD, sum)
	}

	got, err := repo.GetByID(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != lessons.StatusAnalyzed {
		t.Fatalf("expected analyzed status, got %s", got.Status)
	}
}

func TestRunParsesStructuredStageOutput(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")
	outputs, costs := defaultOutputs()
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	result, err := orch.Run(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	coverage, ok := result.Stages[routing.KeyCoverageAnalysis].(map[string]any)
	if !ok {
		t.Fatalf("expected coverage stage parsed as object, got %T", result.Stages[routing.KeyCoverageAnalysis])
	}
	if coverage["coveragePct"] != float64(80) {
		t.Fatalf("unexpected coverage payload: %v", coverage)
	}
	if _, ok := result.Stages[routing.KeyExerciseGeneration].([]any); !ok {
		t.Fatalf("expected exercise stage parsed as array, got %T", result.Stages[routing.KeyExerciseGeneration])
	}
	if _, ok := result.Stages[routing.KeyReportGeneration].(string); !ok {
		t.Fatalf("expected report stage kept as raw text, got %T", result.Stages[routing.KeyReportGeneration])
	}
}

func TestRunPreflightFailsBeforeAnyCall(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")

	promptRepo := prompts.NewMemoryRepo()
	// Seed everything except alert_detection.
	for _, name := range routing.AnalysisTypes[:len(routing.AnalysisTypes)-1] {
		err := promptRepo.Create(context.Background(), prompts.PromptTemplate{
			Name: name, Version: 1, Body: "x", Active: true,
		})
		if err != nil {
			t.Fatalf("seed template: %v", err)
		}
	}
	gen := &scriptedGenerator{}

	orch := NewOrchestrator(repo, prompts.NewService(promptRepo), gen, nil)
	if _, err := orch.Run(context.Background(), lesson.ID); err == nil {
		t.Fatal("expected preflight error")
	}
	if len(gen.seenKeys) != 0 {
		t.Fatalf("expected no paid calls before preflight, got %v", gen.seenKeys)
	}

	got, err := repo.GetByID(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != lessons.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.ErrorCode != lessons.ErrorCodeTemplateMissing {
		t.Fatalf("expected template error code, got %s", got.ErrorCode)
	}
}

func TestRunStageFailureMarksErrorAndStoresNothing(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")
	outputs, costs := defaultOutputs()
	gen := &scriptedGenerator{outputs: outputs, costs: costs, failAt: routing.KeyReportGeneration}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	_, err := orch.Run(context.Background(), lesson.ID)
	if err == nil {
		t.Fatal("expected stage failure to propagate")
	}
	if !strings.Contains(err.Error(), routing.KeyReportGeneration) {
		t.Fatalf("error should name the failed capability: %v", err)
	}

	got, err := repo.GetByID(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != lessons.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.ErrorCode != lessons.ErrorCodeProviderFailed {
		t.Fatalf("expected provider error code, got %s", got.ErrorCode)
	}
	if _, err := repo.GetAnalysisResult(context.Background(), lesson.ID); err != lessons.ErrNoResult {
		t.Fatalf("expected no stored result, got %v", err)
	}
}

func TestRunExtractsAdherenceWhenObjectiveDeclared(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "Students can compare fractions with unlike denominators.")
	outputs, costs := defaultOutputs()
	outputs[routing.KeyReportGeneration] = "The class went well.\n---ADHERENCE---\n" +
		`{"score": 90, "summary": "Objective met."}` + "\n---END ADHERENCE---\n"
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	result, err := orch.Run(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Adherence == nil {
		t.Fatal("expected adherence result")
	}
	if result.Adherence["score"] != float64(90) {
		t.Fatalf("unexpected adherence: %v", result.Adherence)
	}
	report := result.Stages[routing.KeyReportGeneration].(string)
	if strings.Contains(report, adherenceStart) {
		t.Fatalf("adherence block not excised from report: %q", report)
	}
}

func TestRunLeavesAdherenceNilWithoutObjective(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := seedLesson(t, repo, "")
	outputs, costs := defaultOutputs()
	outputs[routing.KeyReportGeneration] = "Report.\n---ADHERENCE---\n" +
		`{"score": 90, "summary": "Objective met."}` + "\n---END ADHERENCE---\n"
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	result, err := orch.Run(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Adherence != nil {
		t.Fatalf("expected nil adherence without objective, got %v", result.Adherence)
	}
	report := result.Stages[routing.KeyReportGeneration].(string)
	if !strings.Contains(report, adherenceStart) {
		t.Fatal("report text must be unmodified without objective")
	}
}

func TestRunIncludesTranscriptionCostInTotal(t *testing.T) {
	repo := lessons.NewMemoryRepo()
	lesson := lessons.Lesson{
		ID:                   "7a0d2f4e-8a84-4a5e-9a25-8e6f2f1b7c02",
		SchoolID:             "school-1",
		TranscriptText:       "Teacher: short lesson.",
		TranscriptionCostUSD: 0.01,
		Status:               lessons.StatusTranscribed,
	}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed lesson: %v", err)
	}
	outputs, costs := defaultOutputs()
	gen := &scriptedGenerator{outputs: outputs, costs: costs}

	orch := NewOrchestrator(repo, seedTemplates(t), gen, nil)
	result, err := orch.Run(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(result.TotalCostUSD-0.095) > 1e-9 {
		t.Fatalf("expected transcription cost included (0.095), got %v", result.TotalCostUSD)
	}
}
