package provider

// Result is the normalized outcome of one text-generation call.
// It is produced once per invocation and owned by the caller.
type Result struct {
	Text       string         `json:"text"`
	ProviderID string         `json:"providerId"`
	TokensIn   int            `json:"tokensIn"`
	TokensOut  int            `json:"tokensOut"`
	CostUSD    float64        `json:"costUsd"`
	LatencyMS  float64        `json:"latencyMs"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Word is one transcript word with timestamps in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TranscriptionResult is the normalized outcome of one transcription call.
type TranscriptionResult struct {
	Text       string         `json:"text"`
	Words      []Word         `json:"words,omitempty"`
	ProviderID string         `json:"providerId"`
	CostUSD    float64        `json:"costUsd"`
	LatencyMS  float64        `json:"latencyMs"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
