package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/ytchat/internal/config"
	"github.com/raphaelgruber/ytchat/internal/metrics"
)

// Model wraps a langchaingo chat model, recording latency and token usage.
// It implements llms.Model so callers can pass it anywhere a model is expected.
type Model struct {
	llm         llms.Model
	modelName   string
	temperature float64
	metrics     *metrics.Collector
	tokens      *tokenCounter
	logger      *slog.Logger
}

var _ llms.Model = (*Model)(nil)

// NewModel creates a chat model based on configuration.
func NewModel(ctx context.Context, cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderGoogleAI:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("Google API key required")
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GoogleAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return WrapModel(model, cfg.LLMModel, cfg.Temperature, collector, logger), nil
}

// WrapModel instruments an existing langchaingo model.
func WrapModel(model llms.Model, name string, temperature float64, collector *metrics.Collector, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		llm:         model,
		modelName:   name,
		temperature: temperature,
		metrics:     collector,
		tokens:      defaultTokenCounter,
		logger:      logger,
	}
}

// GenerateContent sends messages to the model. Provider errors that retrying
// cannot fix are wrapped with ErrFatalAPI.
func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := append([]llms.CallOption{llms.WithTemperature(m.temperature)}, options...)

	start := time.Now()
	resp, err := m.llm.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)

	if err != nil {
		m.metrics.RecordResult(metrics.OpLLMGenerate, duration, err)
		m.logger.Warn("llm generate failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, wrapFatalError(fmt.Errorf("generate: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		m.metrics.RecordResult(metrics.OpLLMGenerate, duration, ErrNoChoices)
		return nil, ErrNoChoices
	}

	in, out := m.usage(messages, resp)
	m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, in, out)
	m.logger.Debug("llm generate complete",
		"model", m.modelName,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", in,
		"output_tokens", out,
		"tool_calls", len(resp.Choices[0].ToolCalls),
	)
	return resp, nil
}

// Call implements the single-prompt convenience API.
func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// usage prefers provider-reported token counts and estimates otherwise.
func (m *Model) usage(messages []llms.MessageContent, resp *llms.ContentResponse) (int64, int64) {
	if in, out, ok := reportedUsage(resp.Choices[0].GenerationInfo); ok {
		return in, out
	}

	var in int64
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				in += m.tokens.Count(text.Text)
			}
		}
	}
	var out int64
	for _, c := range resp.Choices {
		out += m.tokens.Count(c.Content)
	}
	return in, out
}
