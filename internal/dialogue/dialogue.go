// Package dialogue produces the assistant's reply to a transcribed request.
//
// The [Engine] builds the prompt (system prompt, optional recent history, the
// new request), calls a [Backend] through a circuit breaker, and separates
// failures into two classes: an unreachable or overloaded backend yields the
// configured fallback reply, while any other error is surfaced to the caller.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"iris/internal/fault"
	"iris/internal/resilience"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Request is a fully assembled completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
}

// Backend is a chat-completion service.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds engine behaviour.
type Config struct {
	SystemPrompt string
	Temperature  float64

	// Memory sends recent exchanges along with each request.
	Memory bool
	// MaxHistory caps how many exchanges are sent when Memory is on.
	MaxHistory int

	// FallbackReply is spoken when the backend is unavailable.
	FallbackReply string
}

// DefaultConfig mirrors the stock assistant persona.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:  "You are a helpful assistant.",
		Temperature:   0.7,
		MaxHistory:    10,
		FallbackReply: "Sorry, I can't reach my language service right now. Please try again in a moment.",
	}
}

// Reply is the engine's answer.
type Reply struct {
	Text string
	// Fallback is set when Text is the configured fallback reply.
	Fallback bool
}

// Engine is the DialogueEngine.
type Engine struct {
	backend Backend
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Engine) { e.breaker = cb }
}

func NewEngine(backend Backend, cfg Config, opts ...Option) *Engine {
	e := &Engine{backend: backend, cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	if e.breaker == nil {
		e.breaker = resilience.NewCircuitBreaker(resilience.Config{Name: "dialogue", Ignore: NotOutage})
	}
	return e
}

// Respond answers text. h may be nil; when set, the exchange is appended on
// success. Fallback replies are never recorded.
func (e *Engine) Respond(ctx context.Context, h *History, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, fault.New(fault.DialogueFailed, "dialogue.respond", errors.New("empty request"))
	}

	req := e.request(h, text)

	var out string
	err := e.breaker.Execute(func() error {
		var err error
		out, err = e.backend.Complete(ctx, req)
		return err
	})
	if err != nil {
		switch kind := Classify(err); kind {
		case fault.Interrupted:
			return Reply{}, classified(fault.Interrupted, err)
		case fault.DialogueUnavailable:
			slog.Warn("dialogue backend unavailable, using fallback reply", "err", err)
			return Reply{Text: e.cfg.FallbackReply, Fallback: true}, nil
		default:
			return Reply{}, classified(fault.DialogueFailed, err)
		}
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return Reply{}, fault.New(fault.DialogueFailed, "dialogue.respond", errors.New("empty reply"))
	}
	if h != nil {
		h.Append(text, out)
	}
	return Reply{Text: out}, nil
}

func (e *Engine) request(h *History, text string) Request {
	req := Request{System: e.cfg.SystemPrompt, Temperature: e.cfg.Temperature}
	if e.cfg.Memory && h != nil {
		for _, x := range h.Recent(e.cfg.MaxHistory) {
			req.Messages = append(req.Messages,
				Message{Role: RoleUser, Content: x.User},
				Message{Role: RoleAssistant, Content: x.Assistant},
			)
		}
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: text})
	return req
}

// Classify maps a backend error onto the dialogue failure kinds. Errors
// already classified by a backend keep their kind.
func Classify(err error) fault.Kind {
	if isCancel(err) {
		return fault.Interrupted
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return fault.DialogueUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fault.DialogueUnavailable
	}
	return fault.DialogueFailed
}

// NotOutage reports whether err should leave the circuit breaker alone. Only
// errors classified as DialogueUnavailable count towards opening it.
func NotOutage(err error) bool {
	return Classify(err) != fault.DialogueUnavailable
}

func classified(k fault.Kind, err error) error {
	if fault.Is(err, k) {
		return err
	}
	return fault.New(k, "dialogue.respond", err)
}

func unavailable(op string, err error) error {
	return fault.New(fault.DialogueUnavailable, op, err)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled)
}
