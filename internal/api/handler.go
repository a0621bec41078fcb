// Package api provides HTTP handlers for the widget host.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/ecolite-widget/internal/handoff"
	"github.com/ashureev/ecolite-widget/internal/identity"
	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/ashureev/ecolite-widget/internal/visitor"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Sessions is the registry of open widget connections.
type Sessions interface {
	Count() int
	CloseVisitor(visitorID string) int
}

// Handler serves the JSON endpoints.
type Handler struct {
	kv       store.KV
	sessions Sessions
	handoff  handoff.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(kv store.KV, sessions Sessions, cfg handoff.Config) *Handler {
	return &Handler{kv: kv, sessions: sessions, handoff: cfg}
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/handoff", h.Handoff)
	r.Delete("/visitor", h.Forget)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports store reachability and the number of open widgets.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.kv.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Store health check failed")
		status, code = "degraded", http.StatusServiceUnavailable
	}
	JSON(w, code, map[string]interface{}{
		"status":   status,
		"sessions": h.sessions.Count(),
	})
}

// Handoff derives the deep-link variants for ?href= as the widget would at
// click time. ?ua= overrides the User-Agent used for platform detection and
// ?q= supplies the last query used for the prefilled message.
func (h *Handler) Handoff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	href := strings.TrimSpace(q.Get("href"))
	if href == "" {
		Error(w, http.StatusBadRequest, "href is required")
		return
	}

	ua := q.Get("ua")
	if ua == "" {
		ua = r.UserAgent()
	}

	profile := visitor.New(h.kv, store.Scope(identity.OriginFromContext(r.Context()), identity.VisitorIDFromContext(r.Context())))
	name, err := profile.DisplayName(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load display name for handoff preview")
	}

	lastQuery := q.Get("q")
	decorator := handoff.NewDecorator(h.handoff.Host,
		func() string { return name },
		func() string { return lastQuery },
	)
	set, err := handoff.NewBuilder(h.handoff, decorator).Build(href)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	JSON(w, http.StatusOK, handoff.Preview{
		Platform: handoff.DetectPlatform(ua),
		Links:    set,
	})
}

// Forget erases the calling visitor's session id and remembered name on this
// origin and closes their open widgets.
func (h *Handler) Forget(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	profile := visitor.New(h.kv, store.Scope(identity.OriginFromContext(r.Context()), visitorID))
	if err := profile.Forget(r.Context()); err != nil {
		log.Error().Err(err).Str("visitor_id", visitorID).Msg("Failed to forget visitor")
		Error(w, http.StatusInternalServerError, "failed to remove visitor data")
		return
	}

	closed := h.sessions.CloseVisitor(visitorID)
	log.Info().Str("visitor_id", visitorID).Int("closed", closed).Msg("Visitor data removed")
	JSON(w, http.StatusOK, map[string]interface{}{"closed": closed})
}
