package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAIConfig configures an OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// OpenAI generates through langchaingo's OpenAI client.
type OpenAI struct {
	llm   *openai.LLM
	model string
}

// NewOpenAI creates the client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	token := cfg.APIKey
	if token == "" {
		// langchaingo refuses an empty token even for local endpoints.
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &OpenAI{llm: client, model: cfg.Model}, nil
}

// Generate sends the exchange as human, ai, human messages. Only
// temperature and max tokens reach the endpoint: langchaingo's chat request
// has no top_p or top_k field.
func (o *OpenAI) Generate(ctx context.Context, ex Exchange, dec Decoding) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAI.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("model", o.model))

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, ex.System),
		llms.TextParts(schema.ChatMessageTypeAI, ex.Priming),
		llms.TextParts(schema.ChatMessageTypeHuman, ex.User),
	}
	resp, err := o.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(dec.Temperature),
		llms.WithMaxTokens(dec.MaxTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: openai: %w", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "no choices")
		return "", fmt.Errorf("%w: openai returned no choices", ErrGenerationFailed)
	}
	span.SetStatus(codes.Ok, "generated")
	return resp.Choices[0].Content, nil
}
