// Package middleware provides HTTP middleware for the widget host.
package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that lets the configured embedding pages call the
// widget API. An empty list or "*" allows any origin without credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			wildcard := len(allowedOrigins) == 0
			explicit := false
			for _, o := range allowedOrigins {
				if o == "*" {
					wildcard = true
				}
				if origin != "" && strings.EqualFold(o, origin) {
					explicit = true
				}
			}

			if origin != "" && (wildcard || explicit) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Widget-Visitor")
				w.Header().Add("Vary", "Origin")
				// Credentials only for explicit origins.
				if explicit {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
