package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"signaldesk/pkg/signaldesk"
)

const maxRequestBodySize = 1 << 20

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.core != nil {
		resp.Provider = h.core.ProviderName()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) createAnalysis(w http.ResponseWriter, r *http.Request) {
	var payload analysisPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.TrimSpace(payload.Symbol)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	noteSymbol(w, symbol)

	result, err := h.core.AnalyzeSymbol(r.Context(), symbol, payload.Profile, payload.Positions)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	noteAttrs(w,
		"analysis_id", result.ID,
		"provider", result.Provider,
		"model", result.Model,
		"action", result.Action,
		"signal_level", result.SignalLevel,
	)
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	result, err := h.core.GetLatestAnalysis(r.Context(), symbol)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	if result == nil {
		writeErrorResponse(w, r, http.StatusNotFound,
			signaldesk.NewError(signaldesk.ErrCodeNotFound, "no analysis stored for "+strings.ToUpper(symbol)))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := strings.TrimSpace(query.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	limit := parseIntDefault(query.Get("limit"), 0)
	results, err := h.core.GetAnalysisHistory(r.Context(), symbol, limit)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	noteAttrs(w, "rows", len(results))
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) getIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	indicators, snap, err := h.core.Indicators(r.Context(), symbol)
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	noteAttrs(w, "bars", len(snap.History), "from_cache", snap.FromCache)
	writeJSON(w, http.StatusOK, indicatorsResponse{
		Symbol:     strings.ToUpper(symbol),
		Quote:      snap.Quote,
		Indicators: indicators,
		Bars:       len(snap.History),
		FromCache:  snap.FromCache,
	})
}

func (h *handler) getModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.core.ListModels(r.Context())
	if err != nil {
		writeErrorResponse(w, r, http.StatusInternalServerError, err)
		return
	}
	noteAttrs(w, "models", len(models))
	writeJSON(w, http.StatusOK, modelsResponse{Provider: h.core.ProviderName(), Models: models})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return middleware.GetReqID(r.Context())
}
