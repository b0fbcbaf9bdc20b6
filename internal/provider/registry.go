package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Known provider ids. The routing config may only reference these.
const (
	IDOpenAI   = "openai"
	IDGemini   = "gemini"
	IDWhisper  = "whisper"
	IDDeepgram = "deepgram"
)

// Registry maps provider ids to adapter instances. It is built once at
// startup and read-only afterwards.
type Registry struct {
	llm map[string]LLMProvider
	stt map[string]STTProvider
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: make(map[string]LLMProvider),
		stt: make(map[string]STTProvider),
	}
}

// RegisterLLM adds a text-generation provider under its own id.
func (r *Registry) RegisterLLM(p LLMProvider) error {
	id := strings.TrimSpace(p.GetID())
	if id == "" {
		return fmt.Errorf("llm provider has empty id")
	}
	if _, exists := r.llm[id]; exists {
		return fmt.Errorf("llm provider %q already registered", id)
	}
	r.llm[id] = p
	return nil
}

// RegisterSTT adds a speech-to-text provider under its own id.
func (r *Registry) RegisterSTT(p STTProvider) error {
	id := strings.TrimSpace(p.GetID())
	if id == "" {
		return fmt.Errorf("stt provider has empty id")
	}
	if _, exists := r.stt[id]; exists {
		return fmt.Errorf("stt provider %q already registered", id)
	}
	r.stt[id] = p
	return nil
}

// LLM resolves a text-generation provider by id.
func (r *Registry) LLM(id string) (LLMProvider, error) {
	p, ok := r.llm[id]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q (known: %s)", id, strings.Join(r.LLMIDs(), ", "))
	}
	return p, nil
}

// STT resolves a speech-to-text provider by id.
func (r *Registry) STT(id string) (STTProvider, error) {
	p, ok := r.stt[id]
	if !ok {
		return nil, fmt.Errorf("unknown stt provider %q (known: %s)", id, strings.Join(r.STTIDs(), ", "))
	}
	return p, nil
}

// HasLLM reports whether an LLM provider id is registered.
func (r *Registry) HasLLM(id string) bool {
	_, ok := r.llm[id]
	return ok
}

// HasSTT reports whether an STT provider id is registered.
func (r *Registry) HasSTT(id string) bool {
	_, ok := r.stt[id]
	return ok
}

// LLMIDs returns registered LLM provider ids, sorted.
func (r *Registry) LLMIDs() []string {
	out := make([]string, 0, len(r.llm))
	for id := range r.llm {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// STTIDs returns registered STT provider ids, sorted.
func (r *Registry) STTIDs() []string {
	out := make([]string, 0, len(r.stt))
	for id := range r.stt {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
