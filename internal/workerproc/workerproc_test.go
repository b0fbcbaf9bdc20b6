package workerproc

import (
	"context"
	"errors"
	"testing"
	"time"

	"classroom-backend/internal/bootstrap"
	"classroom-backend/internal/lessons"
	"classroom-backend/internal/queue"
)

type fakeRunner struct {
	err    error
	lastID string
}

func (r *fakeRunner) Run(ctx context.Context, lessonID string) (lessons.AnalysisResult, error) {
	r.lastID = lessonID
	if r.err != nil {
		return lessons.AnalysisResult{}, r.err
	}
	return lessons.AnalysisResult{LessonID: lessonID, TotalCostUSD: 0.08}, nil
}

type fakeNotifier struct {
	done chan string
	err  error
}

func (n *fakeNotifier) AnalysisCompleted(ctx context.Context, lessonID string, result lessons.AnalysisResult) error {
	n.done <- lessonID
	return n.err
}

func TestParseMessage(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		_, _, err := ParseMessage("   ")
		var empty ErrEmptyBody
		if !errors.As(err, &empty) {
			t.Fatalf("expected ErrEmptyBody, got %v", err)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		_, meta, err := ParseMessage("{oops")
		var decode ErrDecode
		if !errors.As(err, &decode) {
			t.Fatalf("expected ErrDecode, got %v", err)
		}
		if meta.BodyLen != 5 || meta.BodySHA == "" {
			t.Fatalf("expected populated meta, got %+v", meta)
		}
	})

	t.Run("missing lesson id", func(t *testing.T) {
		_, _, err := ParseMessage(`{"requestId":"r1"}`)
		var missing ErrMissingLessonID
		if !errors.As(err, &missing) {
			t.Fatalf("expected ErrMissingLessonID, got %v", err)
		}
		if missing.RequestID != "r1" {
			t.Fatalf("expected request id carried, got %+v", missing)
		}
	})

	t.Run("valid", func(t *testing.T) {
		msg, _, err := ParseMessage(`{"lessonId":"l1","requestId":"r1","version":1}`)
		if err != nil {
			t.Fatalf("ParseMessage: %v", err)
		}
		if msg.LessonID != "l1" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	})
}

func TestHandleMessageRunsPipelineAndNotifies(t *testing.T) {
	runner := &fakeRunner{}
	notifier := &fakeNotifier{done: make(chan string, 1)}
	app := &bootstrap.App{Pipeline: runner, Notifier: notifier}

	body := `{"lessonId":"l1","requestId":"r1","version":1}`
	if err := HandleMessage(context.Background(), app, body); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if runner.lastID != "l1" {
		t.Fatalf("expected pipeline run for l1, got %q", runner.lastID)
	}

	select {
	case id := <-notifier.done:
		if id != "l1" {
			t.Fatalf("notified wrong lesson: %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never fired")
	}
}

func TestHandleMessageWrapsProcessingFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("stage blew up")}
	app := &bootstrap.App{Pipeline: runner}

	err := HandleMessage(context.Background(), app, `{"lessonId":"l1","requestId":"r1"}`)
	var process ErrProcess
	if !errors.As(err, &process) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if process.LessonID != "l1" || process.RequestID != "r1" {
		t.Fatalf("unexpected error fields: %+v", process)
	}
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	runner := &fakeRunner{}
	app := &bootstrap.App{Pipeline: runner}

	ctx := WithParsedMessage(context.Background(), queue.Message{LessonID: "l2"})
	if err := HandleMessage(ctx, app, "ignored body"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if runner.lastID != "l2" {
		t.Fatalf("expected parsed message reuse, got %q", runner.lastID)
	}
}
