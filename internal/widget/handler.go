package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/ecolite-widget/internal/identity"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// TabQueryParam optionally names the browser tab so a reconnect replaces its
// previous connection.
const TabQueryParam = "tab"

const maxEventSize = 16 << 10

// WebSocketHandler upgrades widget connections and runs their sessions.
type WebSocketHandler struct {
	deps           Deps
	sm             *SessionManager
	allowedOrigins []string
	idleTimeout    time.Duration
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(deps Deps, sm *SessionManager, allowedOrigins []string, idleTimeout time.Duration, isDev bool) *WebSocketHandler {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &WebSocketHandler{
		deps:           deps,
		sm:             sm,
		allowedOrigins: allowedOrigins,
		idleTimeout:    idleTimeout,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	origin := identity.OriginFromContext(r.Context())
	logger := log.With().Str("visitor_id", visitorID).Str("origin", origin).Logger()
	logger.Info().Str("ip", identity.IPFromRequest(r)).Msg("Widget connection request")

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to accept WebSocket")
		return
	}
	ws.SetReadLimit(maxEventSize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug().Err(closeErr).Msg("Failed to close websocket")
		}
	}()

	tabID := r.URL.Query().Get(TabQueryParam)
	if tabID == "" || len(tabID) > 64 {
		tabID = uuid.NewString()
	}
	h.sm.Register(visitorID, tabID, ws)
	defer h.sm.Unregister(visitorID, tabID, ws)

	g, ctx := errgroup.WithContext(r.Context())

	out := NewOutbox(ws, visitorID)
	session, err := NewSession(ctx, h.deps, Visitor{ID: visitorID, Origin: origin, UserAgent: r.UserAgent()}, out)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create widget session")
		return
	}

	g.Go(func() error { return out.Run(ctx) })
	g.Go(func() error { return session.Run(ctx) })
	g.Go(func() error { return h.readLoop(ctx, ws, session) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errSessionClosed) {
		logger.Warn().Err(err).Msg("Widget session ended with error")
		return
	}
	logger.Info().Msg("Widget session ended")
}

var errSessionClosed = errors.New("widget: connection closed")

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	log.Warn().Str("origin", origin).Strs("allowed", h.allowedOrigins).Msg("WebSocket origin rejected")
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, session *Session) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, h.idleTimeout)
		_, data, err := ws.Read(readCtx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug().Msg("WebSocket closed by client")
				return errSessionClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
				log.Info().Dur("idle_timeout", h.idleTimeout).Msg("Closing idle widget connection")
				return errSessionClosed
			}
			return errors.Wrap(err, "read widget event")
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Msg("Ignoring malformed widget event")
			continue
		}
		if err := session.Handle(ctx, ev); err != nil {
			return err
		}
	}
}
