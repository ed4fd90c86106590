package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	llmerrs "github.com/mozilla-ai/any-llm-go/errors"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
)

// AnyLLM routes completions through any-llm-go to a non-OpenAI provider.
type AnyLLM struct {
	provider anyllmlib.Provider
	name     string
	model    string
}

var _ Backend = (*AnyLLM)(nil)

// NewAnyLLM creates a backend for providerName, one of: ollama, anthropic,
// gemini, deepseek, mistral, groq. Without an API key option the provider
// reads its usual environment variable.
func NewAnyLLM(providerName, model string, opts ...anyllmlib.Option) (*AnyLLM, error) {
	if model == "" {
		return nil, fmt.Errorf("dialogue: model must not be empty")
	}
	p, err := createProvider(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("dialogue: create %q backend: %w", providerName, err)
	}
	return &AnyLLM{provider: p, name: providerName, model: model}, nil
}

func createProvider(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "ollama":
		return ollama.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: ollama, anthropic, gemini, deepseek, mistral, groq", name)
	}
}

func (b *AnyLLM) Complete(ctx context.Context, req Request) (string, error) {
	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := anyllmlib.RoleUser
		if m.Role == RoleAssistant {
			role = anyllmlib.RoleAssistant
		}
		messages = append(messages, anyllmlib.Message{Role: role, Content: m.Content})
	}

	temp := req.Temperature
	resp, err := b.provider.Completion(ctx, anyllmlib.CompletionParams{
		Model:       b.model,
		Messages:    messages,
		Temperature: &temp,
	})
	if err != nil {
		return "", classifyAnyLLM(b.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", b.name)
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// classifyAnyLLM marks rate limiting, timeouts and server faults as
// unavailable. Provider errors without a status code are left to Classify,
// which still catches network failures in their chain.
func classifyAnyLLM(name string, err error) error {
	if errors.Is(err, llmerrs.ErrRateLimit) {
		return unavailable("dialogue.anyllm", err)
	}
	var pe *llmerrs.ProviderError
	if errors.As(err, &pe) {
		switch code := pe.StatusCode; {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
			return unavailable("dialogue.anyllm", err)
		}
	}
	return fmt.Errorf("%s completion: %w", name, err)
}
