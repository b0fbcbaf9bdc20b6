package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"classroom-backend/internal/extract"
	"classroom-backend/internal/lessons"
	"classroom-backend/internal/prompts"
	"classroom-backend/internal/provider"
	"classroom-backend/internal/routing"
	"classroom-backend/internal/shared/metrics"
	"classroom-backend/internal/shared/storage/object"
	"classroom-backend/internal/shared/telemetry"
)

// DefaultTemperature applies when a template declares no temperature option.
const DefaultTemperature = 0.7

// Per-stage token budgets, applied when the template declares no maxTokens.
var stageTokenBudgets = map[string]int{
	routing.KeyCoverageAnalysis:    2048,
	routing.KeyQualitativeAnalysis: 2048,
	routing.KeyReportGeneration:    4096,
	routing.KeyExerciseGeneration:  2048,
	routing.KeyAlertDetection:      1024,
}

// Generator is the slice of the LLM router the orchestrator needs.
type Generator interface {
	InvokeWithFallback(ctx context.Context, key, prompt string, opts provider.GenerateOptions) (provider.Result, error)
}

// TemplateSource resolves the active template version for a stage.
type TemplateSource interface {
	GetActive(ctx context.Context, name string) (prompts.PromptTemplate, error)
}

// Orchestrator runs the five-stage lesson analysis and persists the result.
type Orchestrator struct {
	Lessons   lessons.Repo
	Templates TemplateSource
	Router    Generator

	// Store backs context seeding for lessons whose transcript or
	// lesson-plan document lives in object storage. Optional.
	Store object.ObjectStore

	now func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(repo lessons.Repo, templates TemplateSource, router Generator, store object.ObjectStore) *Orchestrator {
	return &Orchestrator{
		Lessons:   repo,
		Templates: templates,
		Router:    router,
		Store:     store,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the full pipeline for one lesson. It is safe to call again
// after a failed run: the pipeline re-validates templates, re-seeds context,
// and re-runs every stage from scratch.
func (o *Orchestrator) Run(ctx context.Context, lessonID string) (lessons.AnalysisResult, error) {
	startedAt := o.now()
	metrics.IncPipelineStarted()

	lesson, err := o.Lessons.GetByID(ctx, lessonID)
	if err != nil {
		metrics.IncPipelineFailed()
		return lessons.AnalysisResult{}, fmt.Errorf("pipeline load lesson %s: %w", lessonID, err)
	}

	// Pre-flight: all five templates must resolve before any paid call.
	staged, err := o.resolveTemplates(ctx)
	if err != nil {
		return lessons.AnalysisResult{}, o.fail(ctx, lesson.ID, startedAt, err)
	}

	if err := o.Lessons.UpdateStatus(ctx, lesson.ID, lessons.StatusAnalyzing); err != nil {
		metrics.IncPipelineFailed()
		return lessons.AnalysisResult{}, fmt.Errorf("pipeline set analyzing %s: %w", lesson.ID, err)
	}

	telemetry.Info("pipeline.started", map[string]any{
		"lesson_id": lesson.ID,
		"school_id": lesson.SchoolID,
	})

	renderCtx, err := o.seedContext(ctx, lesson)
	if err != nil {
		return lessons.AnalysisResult{}, o.fail(ctx, lesson.ID, startedAt, err)
	}

	stages := make(map[string]any, len(routing.AnalysisTypes))
	stageCosts := make(map[string]float64, len(routing.AnalysisTypes))
	stageProviders := make(map[string]string, len(routing.AnalysisTypes))
	promptVersions := make(map[string]int, len(routing.AnalysisTypes))
	totalCost := lesson.TranscriptionCostUSD

	for _, stage := range routing.AnalysisTypes {
		tmpl := staged[stage]
		output, result, err := o.runStage(ctx, stage, tmpl, renderCtx)
		if err != nil {
			return lessons.AnalysisResult{}, o.fail(ctx, lesson.ID, startedAt, err)
		}
		stages[stage] = output
		stageCosts[stage] = result.CostUSD
		stageProviders[stage] = result.ProviderID
		promptVersions[stage] = tmpl.Version
		totalCost += result.CostUSD
		renderCtx[stage] = output

		telemetry.Info("pipeline.stage", map[string]any{
			"lesson_id": lesson.ID,
			"stage":     stage,
			"provider":  result.ProviderID,
			"version":   tmpl.Version,
			"cost_usd":  result.CostUSD,
		})
	}

	// Adherence extraction only applies when the lesson declares an objective
	// and the report stage produced free text to scan.
	var adherence map[string]any
	if report, ok := stages[routing.KeyReportGeneration].(string); ok {
		var cleaned string
		adherence, cleaned = ExtractAdherence(report, lesson.Objective != "")
		if adherence != nil {
			stages[routing.KeyReportGeneration] = cleaned
		}
	}

	result := lessons.AnalysisResult{
		ID:             uuid.NewString(),
		LessonID:       lesson.ID,
		Stages:         stages,
		StageCosts:     stageCosts,
		StageProviders: stageProviders,
		PromptVersions: promptVersions,
		Adherence:      adherence,
		TotalCostUSD:   totalCost,
		DurationMS:     durationMS(startedAt, o.now()),
		CreatedAt:      o.now(),
	}
	return o.persist(ctx, lesson.ID, startedAt, result)
}

func (o *Orchestrator) resolveTemplates(ctx context.Context) (map[string]prompts.PromptTemplate, error) {
	out := make(map[string]prompts.PromptTemplate, len(routing.AnalysisTypes))
	for _, stage := range routing.AnalysisTypes {
		tmpl, err := o.Templates.GetActive(ctx, stage)
		if err != nil {
			return nil, fmt.Errorf("pipeline preflight: template %q: %w", stage, err)
		}
		out[stage] = tmpl
	}
	return out, nil
}

func (o *Orchestrator) runStage(ctx context.Context, stage string, tmpl prompts.PromptTemplate, renderCtx map[string]any) (any, provider.Result, error) {
	prompt, err := prompts.Render(tmpl, renderCtx)
	if err != nil {
		return nil, provider.Result{}, fmt.Errorf("pipeline render %s: %w", stage, err)
	}

	opts := provider.GenerateOptions{
		Temperature: tmpl.Temperature(DefaultTemperature),
		MaxTokens:   tmpl.MaxTokens(stageTokenBudgets[stage]),
	}
	result, err := o.Router.InvokeWithFallback(ctx, stage, prompt, opts)
	if err != nil {
		return nil, provider.Result{}, fmt.Errorf("pipeline stage %s: %w", stage, err)
	}

	// Structured output is preferred; raw text survives when the model
	// returned prose. Expected for the report stage.
	output, ok := parseStructured(result.Text)
	if !ok {
		output = result.Text
	}
	return output, result, nil
}

func (o *Orchestrator) persist(ctx context.Context, lessonID string, startedAt time.Time, result lessons.AnalysisResult) (lessons.AnalysisResult, error) {
	if err := o.Lessons.SaveAnalysisResult(ctx, result); err != nil {
		return lessons.AnalysisResult{}, o.fail(ctx, lessonID, startedAt, fmt.Errorf("pipeline persist result: %w", err))
	}
	duration := durationMS(startedAt, o.now())
	metrics.IncPipelineCompleted()
	metrics.ObservePipelineDurationMs(duration)
	telemetry.Info("pipeline.completed", map[string]any{
		"lesson_id":         lessonID,
		"status_transition": "analyzing->analyzed",
		"total_cost_usd":    result.TotalCostUSD,
		"duration_ms":       duration,
	})
	return result, nil
}

// fail marks the lesson as errored and returns the original error for the
// caller's retry policy. The status write uses a detached context so a
// cancelled run still records its failure.
func (o *Orchestrator) fail(ctx context.Context, lessonID string, startedAt time.Time, err error) error {
	code, retryable := classifyFailure(err)
	if markErr := o.Lessons.MarkError(context.WithoutCancel(ctx), lessonID, code, sanitizeError(err)); markErr != nil {
		telemetry.Error("pipeline.mark_error_failed", map[string]any{
			"lesson_id": lessonID,
			"error":     markErr.Error(),
			"cause":     err.Error(),
		})
	}
	metrics.IncPipelineFailed()
	telemetry.Error("pipeline.failed", map[string]any{
		"lesson_id":         lessonID,
		"status_transition": "analyzing->error",
		"error_code":        code,
		"retryable":         retryable,
		"error":             err.Error(),
		"duration_ms":       durationMS(startedAt, o.now()),
	})
	return err
}

// seedContext builds the initial rendering context. The transcript is
// required; a lesson-plan document in object storage contributes curriculum
// text when no inline text exists, and its extraction failure is tolerated.
func (o *Orchestrator) seedContext(ctx context.Context, lesson lessons.Lesson) (map[string]any, error) {
	transcript := lesson.TranscriptText
	if transcript == "" && lesson.TranscriptKey != "" && o.Store != nil {
		loaded, err := o.loadObjectText(ctx, lesson.TranscriptKey)
		if err != nil {
			return nil, fmt.Errorf("pipeline load transcript %s: %w", lesson.TranscriptKey, err)
		}
		transcript = loaded
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("pipeline seed context: lesson %s has no transcript", lesson.ID)
	}

	curriculum := lesson.CurriculumText
	if curriculum == "" && lesson.CurriculumKey != "" && o.Store != nil {
		extracted, err := extract.ExtractText(ctx, o.Store, lesson.CurriculumKey, "", lesson.CurriculumKey)
		if err != nil {
			telemetry.Warn("pipeline.curriculum_extract_failed", map[string]any{
				"lesson_id": lesson.ID,
				"key":       lesson.CurriculumKey,
				"error":     err.Error(),
			})
		} else {
			curriculum = extracted
		}
	}

	return map[string]any{
		"title":        lesson.Title,
		"gradeLevel":   lesson.GradeLevel,
		"subject":      lesson.Subject,
		"objective":    lesson.Objective,
		"hasObjective": lesson.Objective != "",
		"transcript":   transcript,
		"curriculum":   curriculum,
	}, nil
}

func (o *Orchestrator) loadObjectText(ctx context.Context, key string) (string, error) {
	body, err := o.Store.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// parseStructured attempts to read the model output as a JSON object or
// array, tolerating a surrounding markdown code fence.
func parseStructured(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if fenced, ok := stripFence(trimmed); ok {
		trimmed = fenced
	}
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	var value any
	if err := json.Unmarshal([]byte(trimmed), &value); err != nil {
		return nil, false
	}
	switch value.(type) {
	case map[string]any, []any:
		return value, true
	default:
		return nil, false
	}
}

func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	rest := strings.TrimPrefix(text, "```")
	if idx := strings.Index(rest, "\n"); idx >= 0 {
		rest = rest[idx+1:]
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), "```")
	return strings.TrimSpace(rest), true
}

func classifyFailure(err error) (string, bool) {
	if err == nil {
		return lessons.ErrorCodeInternal, false
	}
	if errors.Is(err, prompts.ErrNotFound) {
		return lessons.ErrorCodeTemplateMissing, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return lessons.ErrorCodeProviderTimeout, true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "template") || strings.Contains(msg, "preflight"):
		return lessons.ErrorCodeTemplateMissing, false
	case strings.Contains(msg, "timeout"):
		return lessons.ErrorCodeProviderTimeout, true
	case strings.Contains(msg, "failed on primary") || strings.Contains(msg, "provider"):
		return lessons.ErrorCodeProviderFailed, true
	case strings.Contains(msg, "persist") || strings.Contains(msg, "storage") || strings.Contains(msg, "load lesson") || strings.Contains(msg, "load transcript"):
		return lessons.ErrorCodeStorage, true
	default:
		return lessons.ErrorCodeInternal, false
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

func durationMS(startedAt, completedAt time.Time) float64 {
	return float64(completedAt.Sub(startedAt).Microseconds()) / 1000.0
}
