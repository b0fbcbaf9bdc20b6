package lessons

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"classroom-backend/internal/diarize"
	"classroom-backend/internal/provider"
	"classroom-backend/internal/queue"
	"classroom-backend/internal/shared/storage/object"
	"classroom-backend/internal/shared/telemetry"
)

// ErrAnalysisRunning indicates the lesson is already being analyzed.
var ErrAnalysisRunning = errors.New("analysis already running")

// ErrJobQueueNotConfigured indicates no queue backend is available.
var ErrJobQueueNotConfigured = errors.New("job queue not configured")

// ErrTranscriptionNotConfigured indicates no speech-to-text providers are
// registered.
var ErrTranscriptionNotConfigured = errors.New("transcription not configured")

// PipelineRunner runs the full analysis pipeline for one lesson.
type PipelineRunner interface {
	Run(ctx context.Context, lessonID string) (AnalysisResult, error)
}

// Transcriber is the slice of the speech-to-text router the service needs.
type Transcriber interface {
	InvokeWithFallback(ctx context.Context, audio []byte, opts provider.TranscribeOptions) (provider.TranscriptionResult, error)
}

// SpeakerAttributor labels transcript words by speaker.
type SpeakerAttributor interface {
	Diarize(ctx context.Context, words []provider.Word) diarize.Result
}

// Service implements lesson operations on top of the repo and job queue.
type Service struct {
	Repo     Repo
	JobQueue queue.Client

	// Runner handles analysis inline when no job queue is configured
	// (local development).
	Runner PipelineRunner

	// STT, Diarizer, and Store serve the audio ingest path.
	STT      Transcriber
	Diarizer SpeakerAttributor
	Store    object.ObjectStore
}

// CreateInput carries the fields needed to register a transcribed lesson.
type CreateInput struct {
	SchoolID       string
	Title          string
	GradeLevel     string
	Subject        string
	Objective      string
	TranscriptText string
	CurriculumText string
}

// Create registers a new lesson in the transcribed state.
func (s *Service) Create(ctx context.Context, input CreateInput) (Lesson, error) {
	if strings.TrimSpace(input.SchoolID) == "" {
		return Lesson{}, fmt.Errorf("school id is required")
	}
	if strings.TrimSpace(input.TranscriptText) == "" {
		return Lesson{}, fmt.Errorf("transcript text is required")
	}

	lesson := Lesson{
		ID:             uuid.NewString(),
		SchoolID:       input.SchoolID,
		Title:          input.Title,
		GradeLevel:     input.GradeLevel,
		Subject:        input.Subject,
		Objective:      input.Objective,
		TranscriptText: input.TranscriptText,
		CurriculumText: input.CurriculumText,
		Status:         StatusTranscribed,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, lesson); err != nil {
		return Lesson{}, fmt.Errorf("create lesson: %w", err)
	}
	return lesson, nil
}

// IngestAudioInput carries the metadata and audio for a recorded lesson.
type IngestAudioInput struct {
	SchoolID   string
	Title      string
	GradeLevel string
	Subject    string
	Objective  string
	FileName   string
	Audio      io.Reader
}

// IngestAudio transcribes uploaded lesson audio and registers the lesson in
// the transcribed state. The raw audio object is kept so a lesson can be
// re-transcribed later. When word timestamps are available the transcript is
// diarized before persistence.
func (s *Service) IngestAudio(ctx context.Context, input IngestAudioInput) (Lesson, error) {
	if strings.TrimSpace(input.SchoolID) == "" {
		return Lesson{}, fmt.Errorf("school id is required")
	}
	if input.Audio == nil {
		return Lesson{}, fmt.Errorf("audio is required")
	}
	if s.STT == nil {
		return Lesson{}, ErrTranscriptionNotConfigured
	}

	audio, err := io.ReadAll(input.Audio)
	if err != nil {
		return Lesson{}, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return Lesson{}, fmt.Errorf("audio is empty")
	}

	var audioKey string
	if s.Store != nil {
		key, _, _, err := s.Store.Save(ctx, input.SchoolID, input.FileName, bytes.NewReader(audio))
		if err != nil {
			return Lesson{}, fmt.Errorf("store audio: %w", err)
		}
		audioKey = key
	}

	tr, err := s.STT.InvokeWithFallback(ctx, audio, provider.TranscribeOptions{})
	if err != nil {
		return Lesson{}, fmt.Errorf("transcribe audio: %w", err)
	}

	transcript := tr.Text
	cost := tr.CostUSD
	if s.Diarizer != nil && len(tr.Words) > 0 {
		d := s.Diarizer.Diarize(ctx, tr.Words)
		if d.Transcript != "" {
			transcript = d.Transcript
			cost += d.CostUSD
		}
		telemetry.Info("lesson.diarized", map[string]any{
			"provider":         d.ProviderID,
			"segments":         d.SegmentCount,
			"primary_time_pct": d.Speakers.PrimaryTimePct,
		})
	}

	lesson := Lesson{
		ID:                   uuid.NewString(),
		SchoolID:             input.SchoolID,
		Title:                input.Title,
		GradeLevel:           input.GradeLevel,
		Subject:              input.Subject,
		Objective:            input.Objective,
		AudioKey:             audioKey,
		TranscriptText:       transcript,
		TranscriptionCostUSD: cost,
		Status:               StatusTranscribed,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, lesson); err != nil {
		return Lesson{}, fmt.Errorf("create lesson: %w", err)
	}

	telemetry.Info("lesson.transcribed", map[string]any{
		"lesson_id":    lesson.ID,
		"school_id":    lesson.SchoolID,
		"stt_provider": tr.ProviderID,
		"cost_usd":     cost,
	})
	return lesson, nil
}

// Get returns a lesson by ID.
func (s *Service) Get(ctx context.Context, lessonID string) (Lesson, error) {
	return s.Repo.GetByID(ctx, lessonID)
}

// GetResult returns the analysis result for a lesson.
func (s *Service) GetResult(ctx context.Context, lessonID string) (AnalysisResult, error) {
	return s.Repo.GetAnalysisResult(ctx, lessonID)
}

// List returns lessons for a school, newest first.
func (s *Service) List(ctx context.Context, schoolID string, limit, offset int) ([]Lesson, error) {
	return s.Repo.ListBySchool(ctx, schoolID, limit, offset)
}

// StartAnalysis enqueues a pipeline run for the lesson. Lessons in the
// transcribed, analyzed, or error states may start a run; re-runs replace
// the prior result.
func (s *Service) StartAnalysis(ctx context.Context, lessonID, requestID string) (Lesson, error) {
	lesson, err := s.Repo.GetByID(ctx, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if lesson.Status == StatusAnalyzing {
		return lesson, ErrAnalysisRunning
	}

	if s.JobQueue == nil {
		if s.Runner == nil {
			return Lesson{}, ErrJobQueueNotConfigured
		}
		// Inline fallback for local runs. The pipeline owns status writes.
		go func() {
			if _, err := s.Runner.Run(context.WithoutCancel(ctx), lesson.ID); err != nil {
				telemetry.Error("analysis.inline_run_failed", map[string]any{
					"lesson_id": lesson.ID,
					"error":     err.Error(),
				})
			}
		}()
		return lesson, nil
	}

	msg := queue.Message{
		LessonID:   lesson.ID,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.JobQueue.Send(ctx, msg); err != nil {
		return Lesson{}, fmt.Errorf("enqueue analysis: %w", err)
	}

	telemetry.Info("analysis.enqueued", map[string]any{
		"lesson_id":  lesson.ID,
		"request_id": requestID,
	})
	return lesson, nil
}
