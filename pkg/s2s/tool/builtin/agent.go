package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

const defaultAgentModel = "gpt-4o-mini"

// AgentConfig configures the external agent tool.
type AgentConfig struct {
	// APIKey authenticates against the chat endpoint.
	APIKey string

	// BaseURL overrides the API endpoint, for proxies and compatible
	// providers.
	BaseURL string

	// Model defaults to gpt-4o-mini.
	Model string

	// System is prepended to every delegated query.
	System string
}

type agentArgs struct {
	Query string `json:"query"`
}

// ExternalAgent returns the tool that delegates a query to an external chat
// model and speaks its answer back. Used for questions outside the voice
// model's own knowledge.
func ExternalAgent(cfg AgentConfig) tool.Tool {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = defaultAgentModel
	}

	return tool.MustNewFunc("externalagent", "Answers questions by asking an external agent. Use for anything outside your own knowledge.",
		func(ctx context.Context, args agentArgs) (any, error) {
			if args.Query == "" {
				return nil, fmt.Errorf("%w: empty query", tool.ErrInvalidArgs)
			}
			var messages []openai.ChatCompletionMessageParamUnion
			if cfg.System != "" {
				messages = append(messages, openai.SystemMessage(cfg.System))
			}
			messages = append(messages, openai.UserMessage(args.Query))

			resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model:    model,
				Messages: messages,
			})
			if err != nil {
				return nil, fmt.Errorf("builtin: external agent: %w", err)
			}
			if len(resp.Choices) == 0 {
				return nil, errors.New("builtin: external agent returned no choices")
			}
			return resp.Choices[0].Message.Content, nil
		})
}
