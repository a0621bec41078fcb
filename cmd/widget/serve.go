package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/ecolite-widget/internal/api"
	"github.com/ashureev/ecolite-widget/internal/backend"
	"github.com/ashureev/ecolite-widget/internal/identity"
	"github.com/ashureev/ecolite-widget/internal/middleware"
	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/ashureev/ecolite-widget/internal/widget"
	"github.com/ashureev/ecolite-widget/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the widget script, its websocket channel and the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	log.Info().Str("port", cfg.Server.Port).Bool("dev", cfg.IsDevelopment()).Str("store", cfg.Store.Backend).Msg("Starting widget host")

	kv, err := store.Open(ctx, store.Options{
		Backend:     store.Backend(cfg.Store.Backend),
		SQLitePath:  cfg.Store.SQLitePath,
		RedisAddr:   cfg.Store.RedisAddr,
		RedisPrefix: cfg.Store.RedisPrefix,
	})
	if err != nil {
		return errors.Wrap(err, "open store")
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close store")
		}
	}()

	if err := kv.Ping(ctx); err != nil {
		return errors.Wrap(err, "store health check")
	}
	log.Info().Msg("Store connected")

	client := backend.NewClient(cfg.Backend.ChatURL, cfg.Backend.LeadsURL, cfg.Backend.Timeout)
	hc := handoffConfig(cfg)

	sm := widget.NewSessionManager()
	wsHandler := widget.NewWebSocketHandler(widget.Deps{
		Chat:          client,
		Leads:         client,
		KV:            kv,
		Handoff:       hc,
		CatalogURL:    cfg.Widget.CatalogURL,
		RatePerSecond: cfg.Widget.RatePerSecond,
		Burst:         cfg.Widget.Burst,
	}, sm, cfg.Server.AllowedOrigins, cfg.Widget.IdleTimeout, cfg.IsDevelopment())
	apiHandler := api.NewHandler(kv, sm, hc)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Server.SecureCookies))
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
		r.Use(identity.Middleware(cfg.Server.SecureCookies))
		apiHandler.Routes(r)
	})

	r.Handle("/*", web.Handler())

	// Websocket connections are long-lived; no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "listen")
		}
	case <-ctx.Done():
	}

	log.Info().Int("sessions", sm.Count()).Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server forced to shutdown")
	}

	log.Info().Msg("Server stopped successfully")
	return nil
}
