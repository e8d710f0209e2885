package signaldesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// geminiRevisions are the API revisions tried, in order, for listing and generation.
var geminiRevisions = []string{"v1beta", "v1"}

const maxGeminiModelPages = 5

var reModelVersion = regexp.MustCompile(`-(\d+(?:\.\d+)?)(?:-|$)`)

// Model id tokens that mark non-text or non-generative models.
var nonTextModelTokens = map[string]struct{}{
	"tts":       {},
	"speech":    {},
	"audio":     {},
	"image":     {},
	"imagen":    {},
	"video":     {},
	"veo":       {},
	"embedding": {},
	"embed":     {},
	"aqa":       {},
	"live":      {},
}

var invalidKeyMarkers = []string{
	"api_key_invalid",
	"api key not valid",
	"api key expired",
	"permission_denied",
	"invalid api key",
	"api key was reported as leaked",
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// ListGeminiModels returns the models visible to the key, trying each API
// revision until one answers. A rejected key fails immediately with a
// configuration error.
func ListGeminiModels(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) ([]ModelDescriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if isPlaceholderAPIKey(cfg.APIKey) {
		return nil, NewError(ErrCodeConfiguration, "gemini api key is missing or a placeholder")
	}
	baseURL, err := geminiBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: defaultDuration(cfg.HTTPTimeout, defaultAIRequestTimeout)}

	var reasons []string
	for _, revision := range geminiRevisions {
		models, err := fetchGeminiModels(ctx, client, baseURL, revision, strings.TrimSpace(cfg.APIKey))
		if err == nil {
			logger.Debug("gemini models listed", "revision", revision, "count", len(models))
			return models, nil
		}
		if IsErrorCode(err, ErrCodeConfiguration) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, WrapError(ErrCodeUpstreamUnavailable, "gemini model listing cancelled", ctx.Err())
		}
		logger.Warn("gemini model listing failed", "revision", revision, "err", err)
		reasons = append(reasons, fmt.Sprintf("%s -> %v", revision, err))
	}
	return nil, NewError(ErrCodeUpstreamUnavailable, "gemini model listing failed: "+strings.Join(reasons, " | "))
}

func fetchGeminiModels(ctx context.Context, client HTTPDoer, baseURL, revision, apiKey string) ([]ModelDescriptor, error) {
	var out []ModelDescriptor
	pageToken := ""
	for page := 0; page < maxGeminiModelPages; page++ {
		query := url.Values{}
		query.Set("key", apiKey)
		query.Set("pageSize", "1000")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s%s/models?%s", baseURL, revision, query.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini models request failed: %w", err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxAIResponseBodySize))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read gemini models response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			if isInvalidKeyResponse(resp.StatusCode, body) {
				return nil, WrapError(ErrCodeConfiguration, "gemini rejected the api key", statusErr)
			}
			return nil, statusErr
		}

		var list geminiModelList
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode gemini models: %w", err)
		}
		for _, m := range list.Models {
			out = append(out, ModelDescriptor{
				ID:               strings.TrimPrefix(m.Name, "models/"),
				DisplayName:      m.DisplayName,
				SupportedMethods: m.SupportedGenerationMethods,
			})
		}
		pageToken = list.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// isInvalidKeyResponse reports a rejected key. 401 and 403 reject on status
// alone; a 400 only when the body says the key is bad.
func isInvalidKeyResponse(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
	default:
		return false
	}
	lower := strings.ToLower(string(body))
	for _, marker := range invalidKeyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RankModels keeps text-generation models and orders them best first.
// Ties keep their discovery order.
func RankModels(descriptors []ModelDescriptor) []string {
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, d := range descriptors {
		if !isUsableTextModel(d) {
			continue
		}
		candidates = append(candidates, scored{id: d.ID, score: modelScore(d.ID)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	ranked := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c.id)
	}
	return ranked
}

func isUsableTextModel(d ModelDescriptor) bool {
	supported := false
	for _, method := range d.SupportedMethods {
		if method == "generateContent" {
			supported = true
			break
		}
	}
	if !supported {
		return false
	}
	for _, token := range modelIDTokens(d.ID) {
		if _, blocked := nonTextModelTokens[token]; blocked {
			return false
		}
	}
	return true
}

func modelIDTokens(id string) []string {
	return strings.FieldsFunc(strings.ToLower(id), func(r rune) bool {
		return r == '-' || r == '_' || r == '/'
	})
}

// modelScore: +10000 latest alias, +1000 per version point, +100 flash tier,
// then +50 stable, +20 preview, +0 experimental.
func modelScore(id string) float64 {
	lower := strings.ToLower(id)
	var score float64
	if strings.Contains(lower, "latest") {
		score += 10000
	}
	if m := reModelVersion.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			score += 1000 * v
		}
	}
	if strings.Contains(lower, "flash") {
		score += 100
	}
	tokens := modelIDTokens(id)
	switch {
	case hasToken(tokens, "exp", "experimental"):
	case hasToken(tokens, "preview"):
		score += 20
	default:
		score += 50
	}
	return score
}

func hasToken(tokens []string, want ...string) bool {
	for _, t := range tokens {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}

func usableModelSummary(descriptors []ModelDescriptor) string {
	ids := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		ids = append(ids, d.ID)
	}
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
