package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"classroom-backend/internal/bootstrap"
	"classroom-backend/internal/queue"
	"classroom-backend/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingLessonID indicates a message missing the lesson id.
type ErrMissingLessonID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingLessonID) Error() string { return "missing lesson id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	LessonID  string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process lesson"
	}
	return "process lesson: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.LessonID) == "" {
		return msg, meta, ErrMissingLessonID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload. On
// successful analysis it fires the best-effort completion notification.
func HandleMessage(ctx context.Context, app *bootstrap.App, body string) error {
	if app == nil || app.Pipeline == nil {
		return errors.New("pipeline not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(msg.LessonID) == "" {
		return ErrMissingLessonID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	result, err := app.Pipeline.Run(ctx, msg.LessonID)
	if err != nil {
		return ErrProcess{LessonID: msg.LessonID, RequestID: msg.RequestID, Err: err}
	}

	// Notification failures never fail the analysis.
	if app.Notifier != nil {
		notifyCtx := context.WithoutCancel(ctx)
		go func() {
			if err := app.Notifier.AnalysisCompleted(notifyCtx, msg.LessonID, result); err != nil {
				telemetry.Warn("worker.notify_failed", map[string]any{
					"lesson_id":  msg.LessonID,
					"request_id": msg.RequestID,
					"error":      err.Error(),
				})
			}
		}()
	}
	return nil
}
