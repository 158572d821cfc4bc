// Package agentimpl provides the built-in registry.Agent implementations
// backed by Anthropic's and OpenAI's chat APIs, registered under the
// "anthropic" and "openai" agent keys.
package agentimpl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicAgent.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int64
	Timeout    time.Duration
}

// AnthropicAgent invokes Anthropic's Messages API and returns the
// response's text content plus usage metadata as an opaque agent result.
type AnthropicAgent struct {
	client *anthropic.Client
	model  string
	maxTokens int64
}

// newAgentResult builds the map an agent/generator step's output holds.
// A plain map[string]interface{}, rather than a struct, so
// `${{ steps.<name>.output.text }}` resolves through expression's
// ordinary MapValue descent instead of needing reflection support.
func newAgentResult(text string, promptTokens, outputTokens int64) map[string]interface{} {
	return map[string]interface{}{
		"text":          text,
		"prompt_tokens": promptTokens,
		"output_tokens": outputTokens,
	}
}

// NewAnthropicAgent builds an AnthropicAgent, reading the API key from
// cfg.APIKey or the ANTHROPIC_API_KEY environment variable.
func NewAnthropicAgent(cfg AnthropicConfig) (*AnthropicAgent, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic agent: no API key configured")
	}

	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_0)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicAgent{client: &client, model: model, maxTokens: maxTokens}, nil
}

// Execute implements registry.Agent. agentContext is expected to carry a
// "prompt" string and an optional "system" string, the shape a static
// `context:` map or a context-builder produces for this agent.
func (a *AnthropicAgent) Execute(ctx context.Context, agentContext map[string]interface{}) (interface{}, error) {
	prompt, _ := agentContext["prompt"].(string)
	if prompt == "" {
		return nil, fmt.Errorf("anthropic agent: context.prompt is required")
	}
	system, _ := agentContext["system"].(string)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params, option.WithRequestTimeout(5*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("anthropic agent: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return newAgentResult(text, resp.Usage.InputTokens, resp.Usage.OutputTokens), nil
}
