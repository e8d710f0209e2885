package signaldesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// openAIProvider calls one fixed chat completions model with no fallback.
type openAIProvider struct {
	cfg    ProviderConfig
	logger *slog.Logger
}

func (p *openAIProvider) Name() string { return ProviderOpenAI }

func (p *openAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error) {
	result, err := openAIChatCompletion(ctx, aiChatRequest{
		BaseURL:      p.cfg.BaseURL,
		APIKey:       p.cfg.APIKey,
		Model:        p.cfg.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Timeout:      p.cfg.HTTPTimeout,
		Logger:       p.logger,
	})
	if err != nil {
		return Generation{}, classifyUpstreamError(ProviderOpenAI, err)
	}
	if strings.TrimSpace(result.Content) == "" {
		return Generation{}, NewError(ErrCodeUpstreamUnavailable, "openai returned empty content")
	}
	return Generation{Provider: ProviderOpenAI, Model: result.Model, Text: result.Content}, nil
}

func requestOpenAIChatCompletion(ctx context.Context, req aiChatRequest) (aiChatResult, error) {
	logAIPromptDebug(req.Logger, ProviderOpenAI, req.Model, req.SystemPrompt, req.UserPrompt)

	client := openai.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(req.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(defaultDuration(req.Timeout, defaultAIRequestTimeout)),
	)
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		Temperature: openai.Float(aiTemperature),
		MaxTokens:   openai.Int(aiMaxOutputTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return aiChatResult{}, &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return aiChatResult{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return aiChatResult{}, errors.New("openai response has no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	logAIRawResponseDebug(req.Logger, ProviderOpenAI, completion.Model, content)

	model := strings.TrimSpace(completion.Model)
	if model == "" {
		model = req.Model
	}
	return aiChatResult{Model: model, Content: content}, nil
}
