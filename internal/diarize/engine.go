package diarize

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"classroom-backend/internal/provider"
	"classroom-backend/internal/routing"
	"classroom-backend/internal/shared/telemetry"
)

// Speaker roles. Classroom audio is teacher-dominated, so ambiguous
// attribution resolves toward the teacher.
const (
	RolePrimary   = "Teacher"
	RoleSecondary = "Student"
)

// FallbackProviderID marks results produced without an LLM call.
const FallbackProviderID = "none"

const (
	diarizeTemperature = 0.2
	diarizeMaxTokens   = 8192
	windowSize         = 10
)

// Generator is the slice of the LLM router the engine needs.
type Generator interface {
	InvokeWithFallback(ctx context.Context, key, prompt string, opts provider.GenerateOptions) (provider.Result, error)
}

// SpeakerStats summarizes per-role attribution for one diarized transcript.
type SpeakerStats struct {
	PrimarySegments   int     `json:"primarySegments"`
	SecondarySegments int     `json:"secondarySegments"`
	PrimaryTimePct    float64 `json:"primaryTimePct"`
}

// Result is a diarized transcript plus attribution stats. Both degraded
// paths still yield a syntactically valid transcript, so consumers never
// special-case unavailable diarization.
type Result struct {
	Transcript   string       `json:"transcript"`
	ProviderID   string       `json:"providerId"`
	CostUSD      float64      `json:"costUsd"`
	SegmentCount int          `json:"segmentCount"`
	Speakers     SpeakerStats `json:"speakers"`
}

// Engine attributes transcript words to speakers via the LLM router.
type Engine struct {
	Router Generator

	// Capability selects the routing pair used for diarization calls.
	Capability string
}

// NewEngine constructs an Engine routed through the qualitative pair.
func NewEngine(router Generator) *Engine {
	return &Engine{Router: router, Capability: routing.KeyQualitativeAnalysis}
}

var segmentLine = regexp.MustCompile(`^\[(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\]\s*([A-Za-z]+):\s*(.*)$`)

// Diarize attributes the given words to speakers. With no words it returns
// an empty-transcript result without calling the LLM; when the LLM call or
// its output fails it degrades to fixed-size unlabeled windows.
func (e *Engine) Diarize(ctx context.Context, words []provider.Word) Result {
	if len(words) == 0 {
		return Result{
			Transcript:   "",
			ProviderID:   FallbackProviderID,
			CostUSD:      0,
			SegmentCount: 0,
			Speakers:     SpeakerStats{PrimaryTimePct: 100},
		}
	}

	prompt := buildPrompt(words)
	result, err := e.Router.InvokeWithFallback(ctx, e.Capability, prompt, provider.GenerateOptions{
		Temperature: diarizeTemperature,
		MaxTokens:   diarizeMaxTokens,
	})
	if err != nil {
		telemetry.Warn("diarize.llm_failed", map[string]any{
			"error": err.Error(),
			"words": len(words),
		})
		return windowFallback(words)
	}

	parsed, ok := parseSegments(result.Text)
	if !ok {
		telemetry.Warn("diarize.unparseable_output", map[string]any{
			"provider": result.ProviderID,
			"words":    len(words),
		})
		return windowFallback(words)
	}
	parsed.ProviderID = result.ProviderID
	parsed.CostUSD = result.CostUSD
	return parsed
}

func buildPrompt(words []provider.Word) string {
	var b strings.Builder
	b.WriteString("Below is a classroom recording as timestamped words. ")
	b.WriteString("Group consecutive words into speaker turns and label each turn ")
	b.WriteString(RolePrimary + " or " + RoleSecondary + ". ")
	b.WriteString("Most classroom speech comes from the " + strings.ToLower(RolePrimary) + "; when unsure, prefer " + RolePrimary + ". ")
	b.WriteString("Answer with one line per turn in the form [start - end] Speaker: text.\n\n")
	for _, w := range words {
		fmt.Fprintf(&b, "[%.2f - %.2f] %s\n", w.Start, w.End, w.Text)
	}
	return b.String()
}

func parseSegments(text string) (Result, bool) {
	var (
		lines         []string
		segments      int
		primaryCount  int
		secondary     int
		primaryTime   float64
		secondaryTime float64
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := segmentLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err1 := strconv.ParseFloat(m[1], 64)
		end, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}
		duration := end - start
		switch m[3] {
		case RoleSecondary:
			secondary++
			secondaryTime += duration
		default:
			// Unknown labels resolve toward the teacher.
			primaryCount++
			primaryTime += duration
		}
		segments++
		lines = append(lines, line)
	}
	if segments == 0 {
		return Result{}, false
	}

	pct := 100.0
	if total := primaryTime + secondaryTime; total > 0 {
		pct = round1(primaryTime / total * 100)
	}
	return Result{
		Transcript:   strings.Join(lines, "\n"),
		SegmentCount: segments,
		Speakers: SpeakerStats{
			PrimarySegments:   primaryCount,
			SecondarySegments: secondary,
			PrimaryTimePct:    pct,
		},
	}, true
}

// windowFallback groups words into fixed windows without speaker labels.
func windowFallback(words []provider.Word) Result {
	var b strings.Builder
	segments := 0
	for i := 0; i < len(words); i += windowSize {
		end := i + windowSize
		if end > len(words) {
			end = len(words)
		}
		window := words[i:end]
		texts := make([]string, len(window))
		for j, w := range window {
			texts[j] = w.Text
		}
		fmt.Fprintf(&b, "[%.2f - %.2f] %s\n", window[0].Start, window[len(window)-1].End, strings.Join(texts, " "))
		segments++
	}
	return Result{
		Transcript:   strings.TrimRight(b.String(), "\n"),
		ProviderID:   FallbackProviderID,
		CostUSD:      0,
		SegmentCount: segments,
		Speakers:     SpeakerStats{PrimaryTimePct: 100},
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
