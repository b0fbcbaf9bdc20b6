package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"classroom-backend/internal/lessons"
)

// Notifier announces completed analyses. Implementations must be
// best-effort: callers log failures and move on.
type Notifier interface {
	AnalysisCompleted(ctx context.Context, lessonID string, result lessons.AnalysisResult) error
}

// WebhookNotifier POSTs completion events to a configured URL.
type WebhookNotifier struct {
	URL    string
	client *http.Client
}

// NewWebhookNotifier constructs a WebhookNotifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type completedEvent struct {
	Event        string  `json:"event"`
	LessonID     string  `json:"lessonId"`
	TotalCostUSD float64 `json:"totalCostUsd"`
	DurationMS   float64 `json:"durationMs"`
	CompletedAt  string  `json:"completedAt"`
}

// AnalysisCompleted delivers the completion event.
func (n *WebhookNotifier) AnalysisCompleted(ctx context.Context, lessonID string, result lessons.AnalysisResult) error {
	payload, err := json.Marshal(completedEvent{
		Event:        "analysis.completed",
		LessonID:     lessonID,
		TotalCostUSD: result.TotalCostUSD,
		DurationMS:   result.DurationMS,
		CompletedAt:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook: status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
