package llm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini generator.
type GeminiConfig struct {
	APIKey string
	// Model defaults to gemini-2.5-flash.
	Model   string
	BaseURL string
}

// Gemini generates with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Generate sends the exchange as user, model, user contents.
func (g *Gemini) Generate(ctx context.Context, ex Exchange, dec Decoding) (string, error) {
	ctx, span := tracer.Start(ctx, "Gemini.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("model", g.model))

	contents := []*genai.Content{
		genai.NewContentFromText(ex.System, genai.RoleUser),
		genai.NewContentFromText(ex.Priming, genai.RoleModel),
		genai.NewContentFromText(ex.User, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(dec.Temperature)),
		TopP:            genai.Ptr(float32(dec.TopP)),
		TopK:            genai.Ptr(float32(dec.TopK)),
		MaxOutputTokens: int32(dec.MaxTokens),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: gemini: %w", ErrGenerationFailed, err)
	}
	span.SetStatus(codes.Ok, "generated")
	return resp.Text(), nil
}
