package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/phrazzld/sprint-planner-api/internal/config"
	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/phrazzld/sprint-planner-api/internal/platform/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChatClient struct {
	CreateChatCompletionFn func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return m.CreateChatCompletionFn(ctx, req)
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{Provider: "openai", Model: "gpt-4.1-mini", OpenAIAPIKey: "sk-test", Temperature: 0.2}
}

func TestGenerateSendsJSONRequest(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()

	var got openai.ChatCompletionRequest
	client := &mockChatClient{CreateChatCompletionFn: func(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		got = req
		return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: `{"tasks":[]}`},
			FinishReason: openai.FinishReasonStop,
		}}}, nil
	}}

	g := newGenerator(log, client, testConfig())
	out, err := g.Generate(context.Background(), generation.Request{Intent: generation.IntentTaskRefine, Prompt: "refine"})
	require.NoError(t, err)
	assert.Equal(t, `{"tasks":[]}`, out)

	assert.Equal(t, "gpt-4.1-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "refine", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
	assert.Zero(t, got.MaxCompletionTokens)
}

func TestGenerateClassifiesFailures(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()

	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
		err  error
		want error
	}{
		{name: "unauthorized", err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, want: generation.ErrInvalidConfig},
		{name: "bad request", err: &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, want: generation.ErrGenerationFailed},
		{name: "rate limited", err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, want: generation.ErrTransientFailure},
		{name: "network", err: errors.New("connection reset"), want: generation.ErrTransientFailure},
		{name: "no choices", want: generation.ErrInvalidResponse},
		{
			name: "content filter",
			resp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{FinishReason: openai.FinishReasonContentFilter}}},
			want: generation.ErrContentBlocked,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := &mockChatClient{CreateChatCompletionFn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
				return tc.resp, tc.err
			}}
			_, err := newGenerator(log, client, testConfig()).Generate(context.Background(), generation.Request{Prompt: "p"})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestNewGeneratorValidatesConfig(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()

	_, err := NewGenerator(log, config.LLMConfig{Model: "m"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	g, err := NewGenerator(log, config.LLMConfig{Model: "m", OpenAIAPIKey: "k", OpenAIBaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
	assert.NotNil(t, g)
}
