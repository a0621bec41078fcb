// Package identity provides anonymous visitor identity for widget requests.
package identity

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	VisitorCookieName = "ecolite_vid"
	VisitorHeaderName = "X-Widget-Visitor"
	VisitorQueryParam = "vid"
	visitorCookieAge  = 365 * 24 * time.Hour
)

type contextKey int

const (
	visitorIDKey contextKey = iota
	originKey
)

var visitorIDPattern = regexp.MustCompile(`^vid_[a-f0-9]{32}$`)

// VisitorIDFromContext extracts the visitor ID from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// OriginFromContext extracts the embedding page origin from the request
// context.
func OriginFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(originKey).(string); ok {
		return v
	}
	return ""
}

// WithVisitor returns a context carrying visitorID and origin.
func WithVisitor(ctx context.Context, visitorID, origin string) context.Context {
	ctx = context.WithValue(ctx, visitorIDKey, visitorID)
	return context.WithValue(ctx, originKey, origin)
}

// NewVisitorID returns a fresh visitor id.
func NewVisitorID() string {
	return "vid_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsValidVisitorID reports whether id has the visitor id shape.
func IsValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

// OriginFromRequest returns the scheme://host of the page embedding the
// widget: the Origin header, else the Referer, else the request host.
func OriginFromRequest(r *http.Request) string {
	if o := normalizeOrigin(r.Header.Get("Origin")); o != "" {
		return o
	}
	if o := normalizeOrigin(r.Referer()); o != "" {
		return o
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(r.Host)
}

func normalizeOrigin(raw string) string {
	if raw == "" || raw == "null" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func visitorIDFromRequest(r *http.Request) string {
	candidates := []string{
		r.Header.Get(VisitorHeaderName),
		r.URL.Query().Get(VisitorQueryParam),
	}
	if c, err := r.Cookie(VisitorCookieName); err == nil {
		candidates = append(candidates, c.Value)
	}
	for _, id := range candidates {
		if IsValidVisitorID(id) {
			return id
		}
	}
	return ""
}

func setVisitorCookie(w http.ResponseWriter, id string, secure bool) {
	sameSite := http.SameSiteLaxMode
	if secure {
		// Embedding pages live on other sites.
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieAge),
		HttpOnly: true,
		SameSite: sameSite,
		Secure:   secure,
	})
}

// Middleware resolves the visitor id (header, query, cookie, or a new one)
// and the embedding origin, refreshes the cookie and stores both in the
// request context.
func Middleware(secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID := visitorIDFromRequest(r)
			if visitorID == "" {
				visitorID = NewVisitorID()
				log.Debug().Str("visitor_id", visitorID).Msg("New anonymous visitor")
			}
			setVisitorCookie(w, visitorID, secureCookies)

			ctx := WithVisitor(r.Context(), visitorID, OriginFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
