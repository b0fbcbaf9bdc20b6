package lessons

import (
	"context"
	"errors"
	"strings"
	"testing"

	"classroom-backend/internal/diarize"
	"classroom-backend/internal/provider"
	"classroom-backend/internal/queue"
)

type fakeQueue struct {
	sent []queue.Message
	err  error
}

func (q *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func TestServiceCreateValidation(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}

	if _, err := svc.Create(context.Background(), CreateInput{TranscriptText: "hi"}); err == nil {
		t.Fatal("expected error for missing school id")
	}
	if _, err := svc.Create(context.Background(), CreateInput{SchoolID: "s1"}); err == nil {
		t.Fatal("expected error for missing transcript")
	}

	lesson, err := svc.Create(context.Background(), CreateInput{
		SchoolID:       "s1",
		TranscriptText: "Teacher: hello class.",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if lesson.ID == "" {
		t.Fatal("expected generated lesson id")
	}
	if lesson.Status != StatusTranscribed {
		t.Fatalf("expected transcribed status, got %s", lesson.Status)
	}
}

func TestStartAnalysisEnqueuesMessage(t *testing.T) {
	repo := NewMemoryRepo()
	q := &fakeQueue{}
	svc := &Service{Repo: repo, JobQueue: q}

	lesson := Lesson{ID: "lesson-1", SchoolID: "s1", Status: StatusTranscribed}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.StartAnalysis(context.Background(), "lesson-1", "req-9")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if got.ID != "lesson-1" {
		t.Fatalf("unexpected lesson: %+v", got)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(q.sent))
	}
	if q.sent[0].LessonID != "lesson-1" || q.sent[0].RequestID != "req-9" {
		t.Fatalf("unexpected message: %+v", q.sent[0])
	}
}

func TestStartAnalysisRejectsRunningLesson(t *testing.T) {
	repo := NewMemoryRepo()
	svc := &Service{Repo: repo, JobQueue: &fakeQueue{}}

	lesson := Lesson{ID: "lesson-1", SchoolID: "s1", Status: StatusAnalyzing}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.StartAnalysis(context.Background(), "lesson-1", ""); !errors.Is(err, ErrAnalysisRunning) {
		t.Fatalf("expected ErrAnalysisRunning, got %v", err)
	}
}

func TestStartAnalysisAllowsRetryAfterError(t *testing.T) {
	repo := NewMemoryRepo()
	q := &fakeQueue{}
	svc := &Service{Repo: repo, JobQueue: q}

	lesson := Lesson{ID: "lesson-1", SchoolID: "s1", Status: StatusError}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.StartAnalysis(context.Background(), "lesson-1", ""); err != nil {
		t.Fatalf("expected retry allowed after error, got %v", err)
	}
	if len(q.sent) != 1 {
		t.Fatalf("expected one enqueued message, got %d", len(q.sent))
	}
}

type fakeSTT struct {
	result provider.TranscriptionResult
	err    error
	audio  []byte
}

func (f *fakeSTT) InvokeWithFallback(ctx context.Context, audio []byte, opts provider.TranscribeOptions) (provider.TranscriptionResult, error) {
	f.audio = audio
	if f.err != nil {
		return provider.TranscriptionResult{}, f.err
	}
	return f.result, nil
}

type fakeDiarizer struct {
	result diarize.Result
	words  []provider.Word
}

func (f *fakeDiarizer) Diarize(ctx context.Context, words []provider.Word) diarize.Result {
	f.words = words
	return f.result
}

func TestIngestAudioTranscribesAndDiarizes(t *testing.T) {
	repo := NewMemoryRepo()
	stt := &fakeSTT{result: provider.TranscriptionResult{
		Text:       "hello class",
		Words:      []provider.Word{{Text: "hello", Start: 0, End: 0.4}, {Text: "class", Start: 0.4, End: 0.9}},
		ProviderID: "whisper",
		CostUSD:    0.006,
	}}
	diar := &fakeDiarizer{result: diarize.Result{
		Transcript:   "[0.0 - 0.9] Teacher: hello class",
		ProviderID:   "openai",
		CostUSD:      0.002,
		SegmentCount: 1,
	}}
	svc := &Service{Repo: repo, STT: stt, Diarizer: diar}

	lesson, err := svc.IngestAudio(context.Background(), IngestAudioInput{
		SchoolID: "s1",
		Title:    "Fractions",
		FileName: "lesson.wav",
		Audio:    strings.NewReader("fake-audio-bytes"),
	})
	if err != nil {
		t.Fatalf("IngestAudio: %v", err)
	}
	if string(stt.audio) != "fake-audio-bytes" {
		t.Fatalf("unexpected audio passed to STT: %q", stt.audio)
	}
	if len(diar.words) != 2 {
		t.Fatalf("expected words forwarded to diarizer, got %d", len(diar.words))
	}
	if lesson.TranscriptText != "[0.0 - 0.9] Teacher: hello class" {
		t.Fatalf("expected diarized transcript, got %q", lesson.TranscriptText)
	}
	if diff := lesson.TranscriptionCostUSD - 0.008; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected combined cost 0.008, got %v", lesson.TranscriptionCostUSD)
	}
	if lesson.Status != StatusTranscribed {
		t.Fatalf("expected transcribed status, got %s", lesson.Status)
	}

	stored, err := repo.GetByID(context.Background(), lesson.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.TranscriptText != lesson.TranscriptText {
		t.Fatalf("transcript not persisted: %q", stored.TranscriptText)
	}
}

func TestIngestAudioKeepsRawTranscriptWithoutWords(t *testing.T) {
	repo := NewMemoryRepo()
	stt := &fakeSTT{result: provider.TranscriptionResult{Text: "hello class", ProviderID: "deepgram", CostUSD: 0.004}}
	diar := &fakeDiarizer{result: diarize.Result{Transcript: "should not be used"}}
	svc := &Service{Repo: repo, STT: stt, Diarizer: diar}

	lesson, err := svc.IngestAudio(context.Background(), IngestAudioInput{
		SchoolID: "s1",
		Audio:    strings.NewReader("audio"),
	})
	if err != nil {
		t.Fatalf("IngestAudio: %v", err)
	}
	if lesson.TranscriptText != "hello class" {
		t.Fatalf("expected raw transcript, got %q", lesson.TranscriptText)
	}
	if diar.words != nil {
		t.Fatal("diarizer should not run without word timestamps")
	}
}

func TestIngestAudioFailsWithoutSTT(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}

	_, err := svc.IngestAudio(context.Background(), IngestAudioInput{
		SchoolID: "s1",
		Audio:    strings.NewReader("audio"),
	})
	if !errors.Is(err, ErrTranscriptionNotConfigured) {
		t.Fatalf("expected ErrTranscriptionNotConfigured, got %v", err)
	}
}

func TestIngestAudioPropagatesProviderFailure(t *testing.T) {
	boom := errors.New("both providers failed")
	svc := &Service{Repo: NewMemoryRepo(), STT: &fakeSTT{err: boom}}

	_, err := svc.IngestAudio(context.Background(), IngestAudioInput{
		SchoolID: "s1",
		Audio:    strings.NewReader("audio"),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestStartAnalysisWithoutQueueOrRunner(t *testing.T) {
	repo := NewMemoryRepo()
	svc := &Service{Repo: repo}

	lesson := Lesson{ID: "lesson-1", SchoolID: "s1", Status: StatusTranscribed}
	if err := repo.Create(context.Background(), lesson); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.StartAnalysis(context.Background(), "lesson-1", ""); !errors.Is(err, ErrJobQueueNotConfigured) {
		t.Fatalf("expected ErrJobQueueNotConfigured, got %v", err)
	}
}
