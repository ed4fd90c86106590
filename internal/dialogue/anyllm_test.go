package dialogue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	llmerrs "github.com/mozilla-ai/any-llm-go/errors"

	"iris/internal/fault"
)

type backendFunc func() error

func (f backendFunc) Complete(context.Context, Request) (string, error) { return "", f() }

func providerError(status int) error {
	pe := llmerrs.NewProviderError("groq", errors.New("upstream"))
	pe.StatusCode = status
	return pe
}

func TestClassifyAnyLLM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{"rate limit", llmerrs.NewRateLimitError("anthropic", errors.New("429")), fault.DialogueUnavailable},
		{"wrapped rate limit", fmt.Errorf("call: %w", llmerrs.NewRateLimitError("groq", nil)), fault.DialogueUnavailable},
		{"service unavailable", providerError(503), fault.DialogueUnavailable},
		{"request timeout", providerError(408), fault.DialogueUnavailable},
		{"too many requests", providerError(429), fault.DialogueUnavailable},
		{"bad request", providerError(400), fault.DialogueFailed},
		{"no status", providerError(0), fault.DialogueFailed},
		{"auth", llmerrs.NewAuthenticationError("gemini", errors.New("401")), fault.DialogueFailed},
		{"invalid request", llmerrs.NewInvalidRequestError("mistral", errors.New("400")), fault.DialogueFailed},
	}
	for _, tt := range tests {
		if got := Classify(classifyAnyLLM("test", tt.err)); got != tt.want {
			t.Errorf("%s: kind = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRespond_AnyLLMOutageUsesFallback(t *testing.T) {
	t.Parallel()
	be := backendFunc(func() error { return classifyAnyLLM("ollama", providerError(502)) })
	cfg := DefaultConfig()
	cfg.FallbackReply = "later"

	r, err := NewEngine(be, cfg).Respond(t.Context(), nil, "hi")
	if err != nil || !r.Fallback || r.Text != "later" {
		t.Fatalf("Respond = %+v, %v; want fallback", r, err)
	}
}
