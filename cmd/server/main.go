package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/janisto/status-backend/internal/config"
	"github.com/janisto/status-backend/internal/http/routes"
	applog "github.com/janisto/status-backend/internal/platform/logging"
	"github.com/janisto/status-backend/internal/platform/metrics"
	appmiddleware "github.com/janisto/status-backend/internal/platform/middleware"
	"github.com/janisto/status-backend/internal/platform/respond"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	ctx := context.Background()
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(ctx, "logger sync error", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		applog.LogFatal(ctx, "invalid configuration", err)
	}

	m := metrics.New()
	router, doc := newRouter(cfg, m)
	srv := newServer(cfg, router)

	listenErr := make(chan error, 2)
	serve := func(s *http.Server, name string) {
		applog.LogInfo(ctx, "server listening", zap.String("server", name), zap.String("addr", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}
	go serve(srv, "api")

	var adminSrv *http.Server
	if cfg.MetricsAddr != "" {
		adminSrv = newAdminServer(cfg, m, doc)
		go serve(adminSrv, "admin")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		applog.LogError(ctx, "listen failed", err)
		_ = applog.Sync()
		os.Exit(1)
	case <-stop:
		applog.LogInfo(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			applog.LogError(shutdownCtx, "admin server shutdown error", err)
		}
	}
	applog.LogInfo(ctx, "server exited")
}

// newRouter assembles the public handler: the global middleware stack, the
// problem-details fallbacks and the huma API with its routes. huma's OpenAPI,
// docs and schema routes are disabled so /status is the only path served; the
// generated document is returned for the admin listener instead.
func newRouter(cfg *config.Config, m *metrics.Metrics) (chi.Router, *huma.OpenAPI) {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For / X-Real-IP; only deploy behind a proxy that sets them.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20), // 1 MB limit
		applog.RequestLogger(cfg.ProjectID),
		applog.AccessLogger(),
		m.Middleware(),
		respond.Recoverer(),
	)

	hcfg := huma.DefaultConfig("Status Backend API", Version)
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	hcfg.SchemasPath = ""
	// Drop the schema link transformer so bodies carry only their declared fields.
	hcfg.CreateHooks = nil
	api := humachi.New(router, hcfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)

	routes.Register(api)
	return router, api.OpenAPI()
}

// addCBORContent documents application/cbor next to every JSON body, since
// huma negotiates both formats at runtime.
func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}
}

// newAdminServer serves the Prometheus registry and the OpenAPI document on
// the opt-in METRICS_ADDR listener.
func newAdminServer(cfg *config.Config, m *metrics.Metrics, doc *huma.OpenAPI) *http.Server {
	mux := chi.NewRouter()
	mux.Handle("/metrics", m.Handler())
	mux.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		payload, err := json.Marshal(doc)
		if err != nil {
			applog.LogError(r.Context(), "failed to encode openapi document", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/openapi+json")
		_, _ = w.Write(payload)
	})
	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
