// Package openai implements generation.Generator on the OpenAI chat
// completions API, or any compatible endpoint set through OpenAIBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a JSON generator. Always return strictly valid JSON only."

// chatClient is the part of *openai.Client the generator uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator implements generation.Generator with JSON-object responses.
type Generator struct {
	client chatClient
	logger *slog.Logger
	config config.LLMConfig
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for the configured key, model and base URL.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}
	return newGenerator(logger, openai.NewClientWithConfig(clientConfig), cfg), nil
}

func newGenerator(logger *slog.Logger, client chatClient, cfg config.LLMConfig) *Generator {
	return &Generator{
		client: client,
		logger: logger.With(slog.String("component", "openai_generator")),
		config: cfg,
	}
}

// Generate sends one chat completion and returns the first choice's content.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", generation.ErrGenerationFailed)
	}

	chatReq := openai.ChatCompletionRequest{
		Model: g.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: g.config.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if g.config.MaxOutputTokens > 0 {
		chatReq.MaxCompletionTokens = g.config.MaxOutputTokens
	}

	g.logger.DebugContext(ctx, "Generating text via OpenAI", "model", g.config.Model, "intent", req.Intent)

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.logger.ErrorContext(ctx, "OpenAI API call failed", "intent", req.Intent, "error", err)
		return "", classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", generation.ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: response filtered", generation.ErrContentBlocked)
	}
	g.logger.DebugContext(ctx, "Received response from OpenAI", "finish_reason", choice.FinishReason)
	return choice.Message.Content, nil
}

// classifyError maps client errors to generation errors. Authentication and
// request errors are permanent; everything else may succeed on retry.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
		case http.StatusBadRequest, http.StatusNotFound:
			return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
