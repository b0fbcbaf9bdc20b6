package provider

import (
	"context"
	"strings"
	"testing"
)

type fakeLLM struct{ id string }

func (f fakeLLM) GetID() string { return f.id }
func (f fakeLLM) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Result, error) {
	_ = ctx
	_ = prompt
	_ = opts
	return Result{ProviderID: f.id}, nil
}
func (f fakeLLM) HealthCheck(ctx context.Context) bool { return true }

func TestRegistryUnknownIDListsKnown(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterLLM(fakeLLM{id: "openai"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterLLM(fakeLLM{id: "gemini"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := reg.LLM("claude")
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	msg := err.Error()
	if !strings.Contains(msg, "claude") {
		t.Fatalf("error should name the unknown id, got %q", msg)
	}
	if !strings.Contains(msg, "gemini") || !strings.Contains(msg, "openai") {
		t.Fatalf("error should list known ids, got %q", msg)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterLLM(fakeLLM{id: "openai"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterLLM(fakeLLM{id: "openai"}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
