package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"classroom-backend/internal/provider"
)

const transcriptionURL = "https://api.openai.com/v1/audio/transcriptions"

// Whisper bills per minute of audio.
const whisperUSDPerMinute = 0.006

// Whisper implements provider.STTProvider using OpenAI audio transcriptions.
type Whisper struct {
	apiKey     string
	httpClient *http.Client
}

// NewWhisper constructs a Whisper transcription client.
func NewWhisper(apiKey string) (*Whisper, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	return &Whisper{apiKey: apiKey, httpClient: &http.Client{}}, nil
}

// GetID returns the registry id for this provider.
func (w *Whisper) GetID() string { return provider.IDWhisper }

type whisperResponse struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Words    []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Transcribe uploads the audio and returns the normalized transcription.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, opts provider.TranscribeOptions) (provider.TranscriptionResult, error) {
	if len(audio) == 0 {
		return provider.TranscriptionResult{}, fmt.Errorf("empty audio payload")
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "audio.mp3")
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return provider.TranscriptionResult{}, err
	}
	_ = form.WriteField("model", "whisper-1")
	_ = form.WriteField("response_format", "verbose_json")
	if opts.WordTimestamps {
		_ = form.WriteField("timestamp_granularities[]", "word")
	}
	if opts.Language != "" {
		_ = form.WriteField("language", opts.Language)
	}
	if opts.VocabularyHint != "" {
		_ = form.WriteField("prompt", opts.VocabularyHint)
	}
	if err := form.Close(); err != nil {
		return provider.TranscriptionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transcriptionURL, &buf)
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	start := time.Now()
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.TranscriptionResult{}, err
	}

	var parsed whisperResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("whisper response parse: %w", err)
	}
	if parsed.Error != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("whisper error: %s", parsed.Error.Message)
	}

	words := make([]provider.Word, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		words = append(words, provider.Word{Text: w.Word, Start: w.Start, End: w.End})
	}
	return provider.TranscriptionResult{
		Text:       parsed.Text,
		Words:      words,
		ProviderID: provider.IDWhisper,
		CostUSD:    parsed.Duration / 60.0 * whisperUSDPerMinute,
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// HealthCheck reports API reachability.
func (w *Whisper) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ provider.STTProvider = (*Whisper)(nil)
