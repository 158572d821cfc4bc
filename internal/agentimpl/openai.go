package agentimpl

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAIAgent.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// OpenAIAgent invokes OpenAI's Chat Completions API. It also implements
// registry.Generator, for workflows that want plain text generation
// rather than the full agent result map.
type OpenAIAgent struct {
	client *openai.Client
	model  string
}

// NewOpenAIAgent builds an OpenAIAgent, reading the API key from
// cfg.APIKey or the OPENAI_API_KEY environment variable.
func NewOpenAIAgent(cfg OpenAIConfig) (*OpenAIAgent, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai agent: no API key configured")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAgent{client: &client, model: model}, nil
}

// Execute implements registry.Agent.
func (a *OpenAIAgent) Execute(ctx context.Context, agentContext map[string]interface{}) (interface{}, error) {
	text, usage, err := a.complete(ctx, agentContext)
	if err != nil {
		return nil, err
	}
	return newAgentResult(text, usage.promptTokens, usage.completionTokens), nil
}

// Generate implements registry.Generator: same call, but returns the bare
// text for Generate steps that don't need usage metadata.
func (a *OpenAIAgent) Generate(ctx context.Context, generatorContext map[string]interface{}) (string, error) {
	text, _, err := a.complete(ctx, generatorContext)
	return text, err
}

type tokenUsage struct {
	promptTokens     int64
	completionTokens int64
}

func (a *OpenAIAgent) complete(ctx context.Context, agentContext map[string]interface{}) (string, tokenUsage, error) {
	prompt, _ := agentContext["prompt"].(string)
	if prompt == "" {
		return "", tokenUsage{}, fmt.Errorf("openai agent: context.prompt is required")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if system, _ := agentContext["system"].(string); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    a.model,
		Messages: messages,
	})
	if err != nil {
		return "", tokenUsage{}, fmt.Errorf("openai agent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", tokenUsage{}, fmt.Errorf("openai agent: no choices returned")
	}

	return resp.Choices[0].Message.Content, tokenUsage{
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
	}, nil
}
