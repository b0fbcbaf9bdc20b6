package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classroom-backend/internal/provider"
)

const chatURL = "https://api.openai.com/v1/chat/completions"

// Per-1M-token pricing used for cost reporting.
const (
	inputUSDPerMTok  = 0.15
	outputUSDPerMTok = 0.60
)

// Client implements provider.LLMProvider using OpenAI Chat Completions.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new OpenAI chat client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required")
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// GetID returns the registry id for this provider.
func (c *Client) GetID() string { return provider.IDOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate calls the chat completions endpoint once.
func (c *Client) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (provider.Result, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemInstruction})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	temp := opts.Temperature
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   opts.MaxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return provider.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.Result{}, fmt.Errorf("openai request timeout: %w", err)
		}
		return provider.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("openai response parse: %w", err)
	}
	if parsed.Error != nil {
		return provider.Result{}, fmt.Errorf("openai error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return provider.Result{}, fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return provider.Result{}, fmt.Errorf("openai response empty content")
	}

	result := provider.Result{
		Text:       content,
		ProviderID: c.GetID(),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		Metadata:   map[string]any{"model": parsed.Model},
	}
	if parsed.Usage != nil {
		result.TokensIn = parsed.Usage.PromptTokens
		result.TokensOut = parsed.Usage.CompletionTokens
		result.CostUSD = tokenCost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	}
	return result, nil
}

// HealthCheck reports whether the API answers a models listing.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.openai.com/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func tokenCost(tokensIn, tokensOut int) float64 {
	return float64(tokensIn)/1e6*inputUSDPerMTok + float64(tokensOut)/1e6*outputUSDPerMTok
}

var _ provider.LLMProvider = (*Client)(nil)
