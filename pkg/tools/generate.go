package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/toolgate/pkg/capability"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// Generation providers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const defaultMaxTokens = 1024

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderOpenAI:    "gpt-4o-mini",
}

type generateArgs struct {
	Prompt string `json:"prompt" jsonschema:"description=The prompt to generate text for"`
}

var generateSchema = capability.ReflectSchema(&generateArgs{})

// textGenerator turns a prompt into text through one provider
type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generateCapability struct {
	name      string
	provider  string
	model     string
	generator textGenerator
	logger    zerolog.Logger
}

func newGenerate(unit capability.Unit, cfg GenerateConfig, logger zerolog.Logger) (*generateCapability, error) {
	provider := strings.ToLower(unitString(unit, "provider", cfg.Provider))
	if provider == "" {
		provider = ProviderAnthropic
	}

	model := unitString(unit, "model", cfg.Model)
	if model == "" {
		model = defaultModels[provider]
	}
	maxTokens := unitInt(unit, "max_tokens", cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	apiKey := unitString(unit, "api_key", cfg.APIKey)
	baseURL := unitString(unit, "base_url", cfg.BaseURL)

	c := &generateCapability{
		name:     unit.Name,
		provider: provider,
		model:    model,
		logger:   logger,
	}

	switch provider {
	case ProviderAnthropic:
		if apiKey != "" {
			c.generator = newAnthropicGenerator(apiKey, baseURL, model, maxTokens)
		}
	case ProviderOpenAI:
		if apiKey != "" {
			c.generator = newOpenAIGenerator(apiKey, baseURL, model, maxTokens)
		}
	default:
		return nil, fmt.Errorf("unsupported generate provider %q", provider)
	}

	return c, nil
}

func (c *generateCapability) Description() string {
	return fmt.Sprintf("Generate text from a prompt using %s", c.provider)
}

func (c *generateCapability) InputSchema() map[string]interface{} {
	return generateSchema
}

func (c *generateCapability) Run(ctx context.Context, args capability.Args) (capability.Result, error) {
	prompt := stringArg(args, "prompt")
	if prompt == "" {
		return capability.Result{"tool": c.name, "error": "Missing 'prompt' parameter"}, nil
	}
	if c.generator == nil {
		return capability.Result{"tool": c.name, "error": fmt.Sprintf("no API key configured for provider %s", c.provider)}, nil
	}

	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn().Err(err).Str("tool", c.name).Str("provider", c.provider).Msg("Generation failed")
		return capability.Result{"tool": c.name, "error": err.Error()}, nil
	}

	return capability.Result{
		"tool":     c.name,
		"provider": c.provider,
		"model":    c.model,
		"result":   text,
	}, nil
}

type anthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func newAnthropicGenerator(apiKey, baseURL, model string, maxTokens int) *anthropicGenerator {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	return &anthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return text.String(), nil
}

type openAIGenerator struct {
	client    openai.Client
	model     string
	maxTokens int
}

func newOpenAIGenerator(apiKey, baseURL, model string, maxTokens int) *openAIGenerator {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	return &openAIGenerator{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (g *openAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(g.model),
		MaxTokens: openai.Int(int64(g.maxTokens)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}
	return response.Choices[0].Message.Content, nil
}
