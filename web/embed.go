// Package web embeds the widget's thin client (dist/widget.js) and a demo
// host page, and serves them over HTTP.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

//go:embed all:dist
var distFS embed.FS

// Handler serves the embedded files. "/" is the demo page; unknown paths
// are 404. The widget script is served with a short cache lifetime so host
// pages pick up new versions quickly.
func Handler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		f, err := subFS.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if closeErr := f.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Str("path", path).Msg("web: failed to close embedded file")
		}

		if strings.HasSuffix(path, ".js") {
			w.Header().Set("Cache-Control", "public, max-age=300")
		}
		fileServer.ServeHTTP(w, r)
	})
}
