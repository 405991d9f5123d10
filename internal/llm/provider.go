package llm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/config"
)

var tracer = otel.Tracer("ragd.llm")

// NewGenerator builds the configured provider.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case "gemini":
		g, err = NewGemini(ctx, GeminiConfig{
			APIKey:  cfg.APIKey.Value(),
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "openai":
		g, err = NewOpenAI(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey.Value(),
		})
		if err == nil && (cfg.TopP != 0 || cfg.TopK != 0) {
			logger.Warn("top_p and top_k are not sent by the openai provider; the endpoint's defaults apply",
				zap.Float64("top_p", cfg.TopP),
				zap.Int("top_k", cfg.TopK),
			)
		}
	default:
		err = fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, apperr.Configuration("llm.new_generator", err)
	}

	logger.Info("generative model initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)
	return g, nil
}

// DecodingFrom maps generation settings to Decoding.
func DecodingFrom(cfg config.GenerationConfig) Decoding {
	return Decoding{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		TopK:        cfg.TopK,
	}
}
