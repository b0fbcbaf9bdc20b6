package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"classroom-backend/internal/provider"
)

const listenURL = "https://api.deepgram.com/v1/listen"

const nova2USDPerMinute = 0.0043

// Client implements provider.STTProvider using Deepgram prerecorded audio.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Deepgram transcription client.
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	return &Client{apiKey: apiKey, httpClient: &http.Client{}}, nil
}

// GetID returns the registry id for this provider.
func (c *Client) GetID() string { return provider.IDDeepgram }

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Words      []struct {
					Word  string  `json:"word"`
					Start float64 `json:"start"`
					End   float64 `json:"end"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrCode string `json:"err_code,omitempty"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

// Transcribe uploads the audio and returns the normalized transcription.
func (c *Client) Transcribe(ctx context.Context, audio []byte, opts provider.TranscribeOptions) (provider.TranscriptionResult, error) {
	if len(audio) == 0 {
		return provider.TranscriptionResult{}, fmt.Errorf("empty audio payload")
	}

	params := url.Values{}
	params.Set("model", "nova-2")
	params.Set("punctuate", "true")
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}
	if opts.VocabularyHint != "" {
		params.Set("keywords", opts.VocabularyHint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.TranscriptionResult{}, err
	}

	var parsed listenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.TranscriptionResult{}, fmt.Errorf("deepgram response parse: %w", err)
	}
	if parsed.ErrCode != "" {
		return provider.TranscriptionResult{}, fmt.Errorf("deepgram error: %s (%s)", parsed.ErrMsg, parsed.ErrCode)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return provider.TranscriptionResult{}, fmt.Errorf("deepgram response missing alternatives")
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	words := make([]provider.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, provider.Word{Text: w.Word, Start: w.Start, End: w.End})
	}
	return provider.TranscriptionResult{
		Text:       alt.Transcript,
		Words:      words,
		ProviderID: c.GetID(),
		CostUSD:    parsed.Metadata.Duration / 60.0 * nova2USDPerMinute,
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
	}, nil
}

// HealthCheck reports API reachability.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.deepgram.com/v1/projects", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ provider.STTProvider = (*Client)(nil)
