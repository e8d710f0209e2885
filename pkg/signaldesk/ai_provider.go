package signaldesk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider kinds.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	defaultGeminiBaseURL    = "https://generativelanguage.googleapis.com"

	defaultAIRequestTimeout = 60 * time.Second
	defaultAnalysisTimeout  = 5 * time.Minute
	maxAIResponseBodySize   = 2 << 20
	aiMaxOutputTokens       = 2048
	aiTemperature           = 0.3
)

// ProviderConfig selects and configures the LLM provider for an analysis.
// It is passed explicitly; nothing is read from process state.
type ProviderConfig struct {
	Kind        string
	APIKey      string
	BaseURL     string
	Model       string
	HTTPTimeout time.Duration
}

// Generation is the raw text returned by a provider together with the model that produced it.
type Generation struct {
	Provider string
	Model    string
	Text     string
}

// Provider turns a system and user prompt into generated text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error)
}

type aiChatRequest struct {
	BaseURL      string
	APIKey       string
	Model        string
	Revision     string
	SystemPrompt string
	UserPrompt   string
	Timeout      time.Duration
	Logger       *slog.Logger
}

type aiChatResult struct {
	Model   string
	Content string
}

// Upstream calls are package variables so tests can stub them.
var (
	openAIChatCompletion = requestOpenAIChatCompletion
	anthropicMessage     = requestAnthropicMessage
	geminiGenerate       = requestGeminiGenerateContent
	listGeminiModels     = ListGeminiModels
)

// NewProvider builds the provider named by cfg.Kind. Missing or placeholder
// credentials fail here with a configuration error, before any network call.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		return nil, NewError(ErrCodeConfiguration, "ai provider is not configured")
	}
	if isPlaceholderAPIKey(cfg.APIKey) {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("%s api key is missing or a placeholder", kind))
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.HTTPTimeout = defaultDuration(cfg.HTTPTimeout, defaultAIRequestTimeout)

	switch kind {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		return &openAIProvider{cfg: cfg, logger: logger}, nil
	case ProviderAnthropic:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultAnthropicBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultAnthropicModel
		}
		return &anthropicProvider{cfg: cfg, logger: logger}, nil
	case ProviderGemini:
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultGeminiBaseURL
		}
		return &geminiProvider{cfg: cfg, logger: logger}, nil
	default:
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("unknown ai provider %q", cfg.Kind))
	}
}

var placeholderKeyMarkers = []string{"your", "placeholder", "changeme", "xxx", "<"}

func isPlaceholderAPIKey(key string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(key))
	if trimmed == "" {
		return true
	}
	for _, marker := range placeholderKeyMarkers {
		if strings.Contains(trimmed, marker) {
			return true
		}
	}
	return false
}

func logAIPromptDebug(logger *slog.Logger, provider, model, systemPrompt, userPrompt string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("ai request prompt",
		"provider", provider,
		"model", strings.TrimSpace(model),
		"system_prompt", systemPrompt,
		"user_prompt", userPrompt,
	)
}

func logAIRawResponseDebug(logger *slog.Logger, provider, model, content string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("ai raw response",
		"provider", provider,
		"model", strings.TrimSpace(model),
		"body_bytes", len(content),
		"raw_body", content,
	)
}

// classifyUpstreamError maps a failed single-model call onto the error codes.
func classifyUpstreamError(provider string, err error) error {
	status := statusCodeOf(err)
	if status == http.StatusTooManyRequests {
		return WrapError(ErrCodeRateLimited, provider+" rate limit or quota exceeded", err)
	}
	return WrapError(ErrCodeUpstreamUnavailable, provider+" request failed", err)
}
