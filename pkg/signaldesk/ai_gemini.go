package signaldesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// geminiProvider discovers the available models, ranks them and walks the
// ranking until one model answers.
type geminiProvider struct {
	cfg    ProviderConfig
	logger *slog.Logger
}

func (p *geminiProvider) Name() string { return ProviderGemini }

func (p *geminiProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (Generation, error) {
	descriptors, err := listGeminiModels(ctx, p.cfg, p.logger)
	if err != nil {
		return Generation{}, err
	}
	ranked := preferModel(RankModels(descriptors), p.cfg.Model)
	if len(ranked) == 0 {
		return Generation{}, NewError(ErrCodeNoUsableModel,
			"no text generation model available; listed models: "+usableModelSummary(descriptors))
	}
	p.logger.Info("gemini model ranking", "candidates", len(ranked), "first", ranked[0])
	return p.walkModels(ctx, ranked, systemPrompt, userPrompt)
}

// preferModel moves a configured model to the front when discovery offered it.
func preferModel(ranked []string, preferred string) []string {
	preferred = strings.TrimPrefix(strings.TrimSpace(preferred), "models/")
	if preferred == "" {
		return ranked
	}
	for i, id := range ranked {
		if id == preferred {
			out := make([]string, 0, len(ranked))
			out = append(out, id)
			out = append(out, ranked[:i]...)
			return append(out, ranked[i+1:]...)
		}
	}
	return ranked
}

type fallbackState int

const (
	stateTryModel fallbackState = iota
	stateTryRevision
	stateAbort
	stateSuccess
)

// walkModels runs the sequential fallback search. Each model is tried on the
// first revision; a 404 moves to the next revision of the same model, a 429
// aborts the whole search, and any other failure or an empty answer moves to
// the next model.
func (p *geminiProvider) walkModels(ctx context.Context, models []string, systemPrompt, userPrompt string) (Generation, error) {
	var (
		state    = stateTryModel
		modelIdx = -1
		revIdx   int
		attempts []string
		result   Generation
		abortErr error
	)
	for {
		switch state {
		case stateTryModel:
			modelIdx++
			if modelIdx >= len(models) {
				return Generation{}, NewError(ErrCodeUpstreamUnavailable,
					"all gemini models failed: "+strings.Join(attempts, " | "))
			}
			revIdx = 0
			state = stateTryRevision

		case stateTryRevision:
			if err := ctx.Err(); err != nil {
				abortErr = WrapError(ErrCodeUpstreamUnavailable, "gemini generation cancelled", err)
				state = stateAbort
				continue
			}
			model, revision := models[modelIdx], geminiRevisions[revIdx]
			attempt := model + "@" + revision
			res, err := geminiGenerate(ctx, aiChatRequest{
				BaseURL:      p.cfg.BaseURL,
				APIKey:       p.cfg.APIKey,
				Model:        model,
				Revision:     revision,
				SystemPrompt: systemPrompt,
				UserPrompt:   userPrompt,
				Timeout:      p.cfg.HTTPTimeout,
				Logger:       p.logger,
			})
			status := statusCodeOf(err)
			switch {
			case err == nil && strings.TrimSpace(res.Content) != "":
				modelName := strings.TrimSpace(res.Model)
				if modelName == "" {
					modelName = model
				}
				result = Generation{Provider: ProviderGemini, Model: modelName, Text: res.Content}
				state = stateSuccess
			case err == nil:
				attempts = append(attempts, fmt.Sprintf("%s -> empty response", attempt))
				p.logger.Warn("gemini model returned empty text", "model", model, "revision", revision)
				state = stateTryModel
			case status == http.StatusTooManyRequests:
				attempts = append(attempts, fmt.Sprintf("%s -> %v", attempt, err))
				abortErr = NewError(ErrCodeRateLimited,
					"gemini quota exceeded; tried: "+strings.Join(attempts, " | "))
				state = stateAbort
			case status == http.StatusNotFound && revIdx+1 < len(geminiRevisions):
				attempts = append(attempts, fmt.Sprintf("%s -> %v", attempt, err))
				p.logger.Debug("gemini model not found on revision", "model", model, "revision", revision)
				revIdx++
			default:
				attempts = append(attempts, fmt.Sprintf("%s -> %v", attempt, err))
				p.logger.Warn("gemini model failed", "model", model, "revision", revision, "err", err)
				state = stateTryModel
			}

		case stateAbort:
			return Generation{}, abortErr

		case stateSuccess:
			return result, nil
		}
	}
}

func requestGeminiGenerateContent(ctx context.Context, req aiChatRequest) (aiChatResult, error) {
	logAIPromptDebug(req.Logger, ProviderGemini, req.Model+"@"+req.Revision, req.SystemPrompt, req.UserPrompt)

	baseURL, err := geminiBaseURL(req.BaseURL)
	if err != nil {
		return aiChatResult{}, err
	}
	timeout := defaultDuration(req.Timeout, defaultAIRequestTimeout)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  req.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: req.Revision,
		},
	})
	if err != nil {
		return aiChatResult{}, fmt.Errorf("create gemini client failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	response, err := client.Models.GenerateContent(callCtx, req.Model, genai.Text(req.UserPrompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		},
		Temperature:      genai.Ptr(float32(aiTemperature)),
		MaxOutputTokens:  aiMaxOutputTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return aiChatResult{}, geminiStatusError(err)
	}
	content := strings.TrimSpace(response.Text())
	logAIRawResponseDebug(req.Logger, ProviderGemini, req.Model, content)

	model := strings.TrimSpace(response.ModelVersion)
	if model == "" {
		model = req.Model
	}
	return aiChatResult{Model: model, Content: content}, nil
}

// geminiStatusError surfaces the HTTP status of a genai API failure as a StatusError.
func geminiStatusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &StatusError{StatusCode: apiErrPtr.Code, Body: apiErrPtr.Message}
	}
	return fmt.Errorf("gemini generate content failed: %w", err)
}

// geminiBaseURL normalizes an endpoint to scheme://host/[prefix/], dropping any
// version segment since the revision is chosen per attempt.
func geminiBaseURL(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = defaultGeminiBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", NewError(ErrCodeConfiguration, "invalid gemini endpoint: "+err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", NewError(ErrCodeConfiguration, "invalid gemini endpoint scheme: "+parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", NewError(ErrCodeConfiguration, "invalid gemini endpoint host")
	}

	var prefix []string
	for _, segment := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if segment == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(segment), "v1") {
			break
		}
		prefix = append(prefix, segment)
	}
	baseURL := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if len(prefix) > 0 {
		baseURL += strings.Join(prefix, "/") + "/"
	}
	return baseURL, nil
}
