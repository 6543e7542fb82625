// Package gemini wraps the Google Gemini API behind the small generation
// and embedding interfaces consumed by processors, so handlers can be
// tested against fakes without network access.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/quillhq/docpipe/internal/config"
)

// Common configuration errors
var (
	ErrMissingAPIKey = errors.New("gemini API key cannot be empty")
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrEmptyInput    = errors.New("embedding input cannot be empty")
	ErrEmptyResponse = errors.New("model returned no usable content")
)

// Client implements text generation and embedding against the Gemini API.
type Client struct {
	client         *genai.Client
	logger         *slog.Logger
	generateModel  string
	embeddingModel string
}

// NewClient creates a Gemini client from the LLM configuration.
func NewClient(ctx context.Context, log *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:         client,
		logger:         log.With(slog.String("component", "gemini")),
		generateModel:  cfg.GenerateModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// GenerateText sends the prompt to the given model (or the configured
// default when model is empty) and returns the textual response.
func (c *Client) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	if model == "" {
		model = c.generateModel
	}

	c.logger.DebugContext(ctx, "generating text",
		"model", model,
		"prompt_length", len(prompt))

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// EmbedText embeds a single text with the given model (or the configured
// default when model is empty) and returns the vector.
func (c *Client) EmbedText(ctx context.Context, model, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	if model == "" {
		model = c.embeddingModel
	}

	c.logger.DebugContext(ctx, "embedding text",
		"model", model,
		"text_length", len(text))

	resp, err := c.client.Models.EmbedContent(ctx, model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content failed: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyResponse
	}

	return resp.Embeddings[0].Values, nil
}
