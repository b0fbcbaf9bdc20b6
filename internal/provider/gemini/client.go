package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classroom-backend/internal/provider"
)

const baseURL = "https://generativelanguage.googleapis.com/v1beta/models"

const (
	inputUSDPerMTok  = 0.075
	outputUSDPerMTok = 0.30
)

// Client implements provider.LLMProvider using the Gemini generateContent API.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient constructs a new Gemini client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}
	return &Client{apiKey: apiKey, model: model, httpClient: &http.Client{}}, nil
}

// GetID returns the registry id for this provider.
func (c *Client) GetID() string { return provider.IDGemini }

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate calls generateContent once.
func (c *Client) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (provider.Result, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if strings.TrimSpace(opts.SystemInstruction) != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: opts.SystemInstruction}}}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return provider.Result{}, err
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return provider.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.Result{}, err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return provider.Result{}, fmt.Errorf("gemini response parse: %w", err)
	}
	if parsed.Error != nil {
		return provider.Result{}, fmt.Errorf("gemini error: %s (%s)", parsed.Error.Message, parsed.Error.Status)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return provider.Result{}, fmt.Errorf("gemini response missing candidates")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return provider.Result{}, fmt.Errorf("gemini response empty content")
	}

	result := provider.Result{
		Text:       text,
		ProviderID: c.GetID(),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		Metadata:   map[string]any{"model": c.model},
	}
	if parsed.UsageMetadata != nil {
		result.TokensIn = parsed.UsageMetadata.PromptTokenCount
		result.TokensOut = parsed.UsageMetadata.CandidatesTokenCount
		result.CostUSD = float64(result.TokensIn)/1e6*inputUSDPerMTok + float64(result.TokensOut)/1e6*outputUSDPerMTok
	}
	return result, nil
}

// HealthCheck reports whether the model metadata endpoint answers.
func (c *Client) HealthCheck(ctx context.Context) bool {
	url := fmt.Sprintf("%s/%s?key=%s", baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var _ provider.LLMProvider = (*Client)(nil)
