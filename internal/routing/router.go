package routing

import (
	"context"
	"fmt"
	"time"

	"classroom-backend/internal/provider"
	"classroom-backend/internal/shared/metrics"
	"classroom-backend/internal/shared/telemetry"
)

// DefaultInvokeTimeout bounds each provider attempt, sized to vendor SLAs.
const DefaultInvokeTimeout = 5 * time.Minute

// LLMRouter resolves analysis-type capability keys to text-generation
// providers and invokes them with primary/fallback semantics.
type LLMRouter struct {
	store    *ConfigStore
	registry *provider.Registry
	timeout  time.Duration
}

// NewLLMRouter constructs an LLM router. A non-positive timeout uses the default.
func NewLLMRouter(store *ConfigStore, reg *provider.Registry, timeout time.Duration) *LLMRouter {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	return &LLMRouter{store: store, registry: reg, timeout: timeout}
}

// ResolvePrimary returns the primary provider for the capability key.
func (r *LLMRouter) ResolvePrimary(key string) (provider.LLMProvider, error) {
	pair, err := r.pair(key)
	if err != nil {
		return nil, err
	}
	return r.registry.LLM(pair.Primary)
}

// ResolveFallback returns the fallback provider for the capability key.
func (r *LLMRouter) ResolveFallback(key string) (provider.LLMProvider, error) {
	pair, err := r.pair(key)
	if err != nil {
		return nil, err
	}
	return r.registry.LLM(pair.Fallback)
}

func (r *LLMRouter) pair(key string) (ProviderPair, error) {
	pair, ok := r.store.Current().LLM[key]
	if !ok {
		return ProviderPair{}, fmt.Errorf("no routing entry for capability %q (known: %v)", key, AnalysisTypes)
	}
	return pair, nil
}

// InvokeWithFallback generates text via the primary provider, retrying once on
// the fallback if the primary fails or times out. Both attempts run under the
// router's per-attempt timeout. A double failure surfaces one composite error.
func (r *LLMRouter) InvokeWithFallback(ctx context.Context, key, prompt string, opts provider.GenerateOptions) (provider.Result, error) {
	primary, err := r.ResolvePrimary(key)
	if err != nil {
		return provider.Result{}, err
	}

	result, primaryErr := invokeLLM(ctx, primary, prompt, opts, r.timeout)
	if primaryErr == nil {
		return result, nil
	}
	telemetry.Warn("router.primary_failed", map[string]any{
		"capability": key,
		"provider":   primary.GetID(),
		"error":      primaryErr.Error(),
	})

	fallback, err := r.ResolveFallback(key)
	if err != nil {
		return provider.Result{}, err
	}
	metrics.IncProviderFallback()

	result, fallbackErr := invokeLLM(ctx, fallback, prompt, opts, r.timeout)
	if fallbackErr == nil {
		telemetry.Info("router.fallback_answered", map[string]any{
			"capability": key,
			"provider":   fallback.GetID(),
		})
		if result.Metadata == nil {
			result.Metadata = map[string]any{}
		}
		result.Metadata["fallback"] = true
		return result, nil
	}

	return provider.Result{}, fmt.Errorf(
		"capability %q failed on primary %q (%v) and fallback %q (%v)",
		key, primary.GetID(), primaryErr, fallback.GetID(), fallbackErr,
	)
}

func invokeLLM(ctx context.Context, p provider.LLMProvider, prompt string, opts provider.GenerateOptions, timeout time.Duration) (provider.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result provider.Result
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := p.Generate(attemptCtx, prompt, opts)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-attemptCtx.Done():
		return provider.Result{}, fmt.Errorf("provider %q: %w", p.GetID(), attemptCtx.Err())
	}
}

// STTRouter resolves the speech-to-text capability to transcription providers
// and invokes them with primary/fallback semantics.
type STTRouter struct {
	store    *ConfigStore
	registry *provider.Registry
	timeout  time.Duration
}

// NewSTTRouter constructs an STT router. A non-positive timeout uses the default.
func NewSTTRouter(store *ConfigStore, reg *provider.Registry, timeout time.Duration) *STTRouter {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	return &STTRouter{store: store, registry: reg, timeout: timeout}
}

// ResolvePrimary returns the primary transcription provider.
func (r *STTRouter) ResolvePrimary() (provider.STTProvider, error) {
	return r.registry.STT(r.store.Current().STT.Primary)
}

// ResolveFallback returns the fallback transcription provider.
func (r *STTRouter) ResolveFallback() (provider.STTProvider, error) {
	return r.registry.STT(r.store.Current().STT.Fallback)
}

// InvokeWithFallback transcribes via the primary provider, retrying once on
// the fallback if the primary fails or times out.
func (r *STTRouter) InvokeWithFallback(ctx context.Context, audio []byte, opts provider.TranscribeOptions) (provider.TranscriptionResult, error) {
	primary, err := r.ResolvePrimary()
	if err != nil {
		return provider.TranscriptionResult{}, err
	}

	result, primaryErr := invokeSTT(ctx, primary, audio, opts, r.timeout)
	if primaryErr == nil {
		return result, nil
	}
	telemetry.Warn("router.primary_failed", map[string]any{
		"capability": KeySpeechToText,
		"provider":   primary.GetID(),
		"error":      primaryErr.Error(),
	})

	fallback, err := r.ResolveFallback()
	if err != nil {
		return provider.TranscriptionResult{}, err
	}
	metrics.IncProviderFallback()

	result, fallbackErr := invokeSTT(ctx, fallback, audio, opts, r.timeout)
	if fallbackErr == nil {
		telemetry.Info("router.fallback_answered", map[string]any{
			"capability": KeySpeechToText,
			"provider":   fallback.GetID(),
		})
		return result, nil
	}

	return provider.TranscriptionResult{}, fmt.Errorf(
		"capability %q failed on primary %q (%v) and fallback %q (%v)",
		KeySpeechToText, primary.GetID(), primaryErr, fallback.GetID(), fallbackErr,
	)
}

func invokeSTT(ctx context.Context, p provider.STTProvider, audio []byte, opts provider.TranscribeOptions, timeout time.Duration) (provider.TranscriptionResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result provider.TranscriptionResult
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := p.Transcribe(attemptCtx, audio, opts)
		ch <- outcome{result, err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-attemptCtx.Done():
		return provider.TranscriptionResult{}, fmt.Errorf("provider %q: %w", p.GetID(), attemptCtx.Err())
	}
}
