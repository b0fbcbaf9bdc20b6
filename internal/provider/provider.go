package provider

import "context"

// GenerateOptions controls a single text-generation call.
type GenerateOptions struct {
	Temperature       float64
	MaxTokens         int
	SystemInstruction string
}

// TranscribeOptions controls a single transcription call.
type TranscribeOptions struct {
	Language       string
	VocabularyHint string
	WordTimestamps bool
}

// LLMProvider is implemented by every text-generation vendor adapter.
type LLMProvider interface {
	GetID() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Result, error)
	HealthCheck(ctx context.Context) bool
}

// STTProvider is implemented by every speech-to-text vendor adapter.
type STTProvider interface {
	GetID() string
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (TranscriptionResult, error)
	HealthCheck(ctx context.Context) bool
}
