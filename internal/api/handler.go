// Package api provides the HTTP surface of the game server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/belief0714/AINarrativeRPG/internal/llm"
	"github.com/belief0714/AINarrativeRPG/internal/media"
	"github.com/belief0714/AINarrativeRPG/internal/observability"
	"github.com/belief0714/AINarrativeRPG/internal/speech"
	"github.com/belief0714/AINarrativeRPG/pkg/conversation"
	"github.com/belief0714/AINarrativeRPG/pkg/persona"
)

// maxUploadBytes bounds a /chat request body. Browser recordings of a
// spoken turn stay well under this.
const maxUploadBytes = 10 << 20

// Handler serves the chat and static endpoints with injected collaborators.
type Handler struct {
	store     conversation.Store
	archive   conversation.Archive
	registry  *persona.Registry
	generator llm.Generator
	stt       speech.Transcriber
	tts       speech.Synthesizer
	converter media.Converter
	files     *media.FileStore
	health    *observability.HealthChecker
}

// NewHandler wires the collaborators together.
func NewHandler(
	store conversation.Store,
	archive conversation.Archive,
	registry *persona.Registry,
	generator llm.Generator,
	stt speech.Transcriber,
	tts speech.Synthesizer,
	converter media.Converter,
	files *media.FileStore,
	health *observability.HealthChecker,
) *Handler {
	return &Handler{
		store:     store,
		archive:   archive,
		registry:  registry,
		generator: generator,
		stt:       stt,
		tts:       tts,
		converter: converter,
		files:     files,
		health:    health,
	}
}

// Routes builds the router. allowedOrigins configures CORS for the browser
// frontend; empty means any origin.
func (h *Handler) Routes(limiter *RateLimiter, allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(MetricsMiddleware)

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		r.Post("/chat", h.handleChat)
	})

	r.Get("/static/{filename}", h.handleStatic)
	r.Get("/healthz", h.health.Handler())
	r.Handle("/metrics", observability.MetricsHandler())

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response naming the failed stage and detail.
func Error(w http.ResponseWriter, status int, stage, details string) {
	JSON(w, status, map[string]string{"error": stage, "details": details})
}
