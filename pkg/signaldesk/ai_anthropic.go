package signaldesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicProvider calls one fixed Messages API model with no fallback.
type anthropicProvider struct {
	cfg    ProviderConfig
	logger *slog.Logger
}

func (p *anthropicProvider) Name() string { return ProviderAnthropic }

func (p *anthropicProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error) {
	result, err := anthropicMessage(ctx, aiChatRequest{
		BaseURL:      p.cfg.BaseURL,
		APIKey:       p.cfg.APIKey,
		Model:        p.cfg.Model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Timeout:      p.cfg.HTTPTimeout,
		Logger:       p.logger,
	})
	if err != nil {
		return Generation{}, classifyUpstreamError(ProviderAnthropic, err)
	}
	if strings.TrimSpace(result.Content) == "" {
		return Generation{}, NewError(ErrCodeUpstreamUnavailable, "anthropic returned empty content")
	}
	return Generation{Provider: ProviderAnthropic, Model: result.Model, Text: result.Content}, nil
}

func requestAnthropicMessage(ctx context.Context, req aiChatRequest) (aiChatResult, error) {
	logAIPromptDebug(req.Logger, ProviderAnthropic, req.Model, req.SystemPrompt, req.UserPrompt)

	client := anthropic.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(req.BaseURL),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(defaultDuration(req.Timeout, defaultAIRequestTimeout)),
	)
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   aiMaxOutputTokens,
		Temperature: anthropic.Float(aiTemperature),
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return aiChatResult{}, &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return aiChatResult{}, fmt.Errorf("anthropic messages request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	logAIRawResponseDebug(req.Logger, ProviderAnthropic, string(message.Model), content)

	model := strings.TrimSpace(string(message.Model))
	if model == "" {
		model = req.Model
	}
	return aiChatResult{Model: model, Content: content}, nil
}
