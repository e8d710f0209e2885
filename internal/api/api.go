package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"signaldesk/pkg/signaldesk"
)

// NewRouter builds the HTTP API router.
func NewRouter(core *signaldesk.Core) http.Handler {
	logger := slog.Default()
	if core != nil && core.Logger() != nil {
		logger = core.Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLogMiddleware(logger))
	r.Use(recoveryMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	h := &handler{core: core, logger: logger}

	r.Get("/api/health", h.health)

	// Signal analysis
	r.Post("/api/analysis", h.createAnalysis)
	r.Get("/api/analysis", h.getLatestAnalysis)
	r.Get("/api/analysis/history", h.getAnalysisHistory)

	// Market data
	r.Get("/api/indicators", h.getIndicators)

	// Model discovery
	r.Get("/api/ai/models", h.getModels)

	return r
}

type handler struct {
	core   *signaldesk.Core
	logger *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	code := signaldesk.ErrCodeInternal
	if status < http.StatusInternalServerError {
		code = signaldesk.ErrCodeInvalidInput
	}
	noteFailure(w, code, message)
	writeJSON(w, status, map[string]string{"error": message})
}
