package dialogue

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
)

// OpenAI is a chat-completions backend.
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Backend = (*OpenAI)(nil)

func NewOpenAI(client openai.Client, model string) *OpenAI {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &OpenAI{client: client, model: model}
}

func (b *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openai.ChatModel(b.model),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty message content")
	}
	return content, nil
}

// classifyOpenAI marks throttling, timeouts and server faults as unavailable.
func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("chat completion: %w", err)
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return unavailable("dialogue.openai", err)
	default:
		return fmt.Errorf("chat completion: %w", err)
	}
}
