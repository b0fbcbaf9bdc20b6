package prompts

import "time"

// PromptTemplate is one versioned prompt body, keyed by (Name, Version).
// Multiple versions of a name may be active at once; the two most recent
// are the live candidates at query time.
type PromptTemplate struct {
	Name           string         `json:"name"`
	Version        int            `json:"version"`
	Body           string         `json:"body"`
	DefaultOptions map[string]any `json:"defaultOptions,omitempty"`
	Active         bool           `json:"active"`
	ABTesting      bool           `json:"abTesting"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// Temperature returns the declared generation temperature, or def when unset.
func (t PromptTemplate) Temperature(def float64) float64 {
	if t.DefaultOptions == nil {
		return def
	}
	if raw, ok := t.DefaultOptions["temperature"]; ok {
		if v, ok := raw.(float64); ok {
			return v
		}
	}
	return def
}

// MaxTokens returns the declared token budget, or def when unset.
func (t PromptTemplate) MaxTokens(def int) int {
	if t.DefaultOptions == nil {
		return def
	}
	if raw, ok := t.DefaultOptions["maxTokens"]; ok {
		switch v := raw.(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return def
}

// StatusUpdate carries the mutable flags for SetStatus. Nil fields are untouched.
type StatusUpdate struct {
	Active    *bool `json:"active,omitempty"`
	ABTesting *bool `json:"abTesting,omitempty"`
}
