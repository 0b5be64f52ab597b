package agent

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/storyloom/storyloom/internal/config"
)

// OpenAIAgent implements Agent using the official openai-go SDK (chat
// completions). One instance serves one role; the role's system prompt and
// running message history are carried across turns so the model keeps the
// conversation context the transcript alone cannot provide.
type OpenAIAgent struct {
	role    Role
	model   string
	system  string
	opts    []option.RequestOption
	history []openai.ChatCompletionMessageParamUnion
}

// NewOpenAIAgent validates the LLM settings and builds the agent.
func NewOpenAIAgent(role Role, system string, cfg config.LLMSettings) (*OpenAIAgent, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("agent: openai api key missing; set llm.api_key or OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("agent: llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIAgent{
		role:   role,
		model:  cfg.Model,
		system: system,
		opts:   opts,
	}, nil
}

// Role returns the role this agent speaks for.
func (a *OpenAIAgent) Role() Role {
	return a.role
}

// Invoke sends the prompt with the role's system prompt and accumulated
// history. The caller's ctx bounds the call; context.DeadlineExceeded
// surfaces unchanged so the engine can classify the failure.
func (a *OpenAIAgent) Invoke(ctx context.Context, prompt string) (string, error) {
	client := openai.NewClient(a.opts...)

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(a.history)+2)
	msgs = append(msgs, openai.SystemMessage(a.system))
	msgs = append(msgs, a.history...)
	msgs = append(msgs, openai.UserMessage(prompt))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("agent: %s invoke: %w", a.role, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("agent: %s invoke: empty choices", a.role)
	}
	text := resp.Choices[0].Message.Content
	a.history = append(a.history,
		openai.UserMessage(prompt),
		openai.ChatCompletionMessageParamOfAssistant(text),
	)
	return text, nil
}
