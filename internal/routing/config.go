package routing

import (
	"encoding/json"
	"fmt"

	"classroom-backend/internal/provider"
)

// Capability keys for the LLM router. The pipeline enumerates exactly these.
const (
	KeyCoverageAnalysis    = "coverage_analysis"
	KeyQualitativeAnalysis = "qualitative_analysis"
	KeyReportGeneration    = "report_generation"
	KeyExerciseGeneration  = "exercise_generation"
	KeyAlertDetection      = "alert_detection"

	// KeySpeechToText is the single capability key of the STT router.
	KeySpeechToText = "speech_to_text"
)

// AnalysisTypes is the closed set of LLM capability keys, in pipeline order.
var AnalysisTypes = []string{
	KeyCoverageAnalysis,
	KeyQualitativeAnalysis,
	KeyReportGeneration,
	KeyExerciseGeneration,
	KeyAlertDetection,
}

// ProviderPair names the primary and fallback provider for one capability.
type ProviderPair struct {
	Primary  string `json:"primary"`
	Fallback string `json:"fallback"`
}

// Config is the routing table mapping capability keys to provider pairs.
// Instances are immutable once published; reloads swap the whole value.
type Config struct {
	Version string                  `json:"version"`
	STT     ProviderPair            `json:"stt"`
	LLM     map[string]ProviderPair `json:"llm"`
}

// DefaultConfig returns the compiled-in routing table.
func DefaultConfig() Config {
	llm := make(map[string]ProviderPair, len(AnalysisTypes))
	for _, key := range AnalysisTypes {
		llm[key] = ProviderPair{Primary: provider.IDOpenAI, Fallback: provider.IDGemini}
	}
	return Config{
		Version: "default",
		STT:     ProviderPair{Primary: provider.IDWhisper, Fallback: provider.IDDeepgram},
		LLM:     llm,
	}
}

// ParseConfig decodes and validates a routing document against the registry.
func ParseConfig(data []byte, reg *provider.Registry) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse routing config: %w", err)
	}
	if err := validate(cfg, reg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config, reg *provider.Registry) error {
	if !reg.HasSTT(cfg.STT.Primary) {
		return fmt.Errorf("routing config: stt primary %q not registered (known: %v)", cfg.STT.Primary, reg.STTIDs())
	}
	if !reg.HasSTT(cfg.STT.Fallback) {
		return fmt.Errorf("routing config: stt fallback %q not registered (known: %v)", cfg.STT.Fallback, reg.STTIDs())
	}
	for _, key := range AnalysisTypes {
		pair, ok := cfg.LLM[key]
		if !ok {
			return fmt.Errorf("routing config: missing llm entry for %q", key)
		}
		if !reg.HasLLM(pair.Primary) {
			return fmt.Errorf("routing config: llm primary %q for %q not registered (known: %v)", pair.Primary, key, reg.LLMIDs())
		}
		if !reg.HasLLM(pair.Fallback) {
			return fmt.Errorf("routing config: llm fallback %q for %q not registered (known: %v)", pair.Fallback, key, reg.LLMIDs())
		}
	}
	for key := range cfg.LLM {
		if !isAnalysisType(key) {
			return fmt.Errorf("routing config: unknown analysis type %q", key)
		}
	}
	return nil
}

func isAnalysisType(key string) bool {
	for _, known := range AnalysisTypes {
		if key == known {
			return true
		}
	}
	return false
}
