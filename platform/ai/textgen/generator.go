// Package textgen is the text-generation collaborator used by scoring and
// re-engagement. Callers own timeouts through their context.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/platform/ai/moonshot"
	"leadflow_backend/platform/config"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the backend produced no text.
var ErrEmptyResponse = errors.New("text generation returned no content")

// Options tune a single generation.
type Options struct {
	MaxTokens   int32
	Temperature float32
	System      string
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// LLMGenerator drives any ADK model.LLM.
type LLMGenerator struct {
	llm model.LLM
}

func NewLLMGenerator(llm model.LLM) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	temp := opts.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: opts.MaxTokens,
	}
	if opts.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(opts.System)}}
	}
	req := &model.LLMRequest{
		Contents: []*genai.Content{{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(prompt)}}},
		Config:   cfg,
	}

	var b strings.Builder
	for resp, err := range g.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// GeminiGenerator calls the Gemini API through the genai client.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: modelName}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	temp := opts.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: opts.MaxTokens,
	}
	if opts.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(opts.System)}}
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// New picks a backend from configuration. It returns nil when no provider key
// is configured; callers treat a nil Generator as unavailable.
func New(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	switch cfg.GetAIProvider() {
	case "gemini":
		if cfg.GetGeminiAPIKey() == "" {
			return nil, nil
		}
		return NewGeminiGenerator(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel())
	default:
		if cfg.GetMoonshotAPIKey() == "" {
			return nil, nil
		}
		return NewLLMGenerator(moonshot.NewModel(moonshot.Config{
			APIKey: cfg.GetMoonshotAPIKey(),
			Model:  cfg.GetMoonshotModel(),
		})), nil
	}
}
