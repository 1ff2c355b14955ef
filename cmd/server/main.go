package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/manmanrai/limerime-vercel-api/internal/config"
	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
	"github.com/manmanrai/limerime-vercel-api/internal/http/health"
	"github.com/manmanrai/limerime-vercel-api/internal/http/v1/customers"
	"github.com/manmanrai/limerime-vercel-api/internal/http/v1/routes"
	applog "github.com/manmanrai/limerime-vercel-api/internal/platform/logging"
	"github.com/manmanrai/limerime-vercel-api/internal/platform/metrics"
	appmiddleware "github.com/manmanrai/limerime-vercel-api/internal/platform/middleware"
	"github.com/manmanrai/limerime-vercel-api/internal/platform/respond"
	"github.com/manmanrai/limerime-vercel-api/internal/service/customersync"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

const docsPath = "/api-docs"

func main() {
	defer func() {
		if err := applog.Sync(); err != nil {
			applog.LogError(context.Background(), "logger sync error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(context.Background(), "logger init error", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		applog.LogError(context.Background(), "failed to read .env", err)
	}
	cfg, err := config.Load(context.Background())
	if err != nil {
		applog.LogFatal(context.Background(), "failed to load config", err)
	}
	if err := applog.SetLevel(cfg.LogLevel); err != nil {
		applog.LogError(context.Background(), "invalid log level", err)
	}

	recorder := metrics.NewRecorder()
	svc := newShopifyService(cfg, recorder)
	coord := newCoordinator(cfg, svc, recorder)

	srv := newServer(listenPort(), newRouter(coord, recorder, cfg.UseMock()))

	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(context.Background(), "server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("demo", cfg.UseMock()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-listenErr:
		applog.LogError(context.Background(), "listen failed", err, zap.String("addr", srv.Addr))
		os.Exit(1)
	case <-stop:
		applog.LogInfo(context.Background(), "shutdown signal received")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		applog.LogError(ctx, "server shutdown error", err)
	}
	applog.LogInfo(context.Background(), "server exited")
}

// newShopifyService returns the Admin API client, or the in-memory demo
// store when shopify.mock is set.
func newShopifyService(cfg *config.Config, recorder *metrics.Recorder) shopify.Service {
	if cfg.UseMock() {
		applog.LogWarn(context.Background(), "shopify.mock set, using the in-memory demo store")
		return shopify.NewDemoShopifyService()
	}
	return shopify.NewClient(
		&http.Client{Timeout: cfg.Shopify.Timeout},
		cfg.Shopify.ShopDomain,
		cfg.Shopify.AdminAPIToken,
		shopify.WithAPIVersion(cfg.Shopify.APIVersion),
		shopify.WithObserver(recorder),
	)
}

func newCoordinator(cfg *config.Config, svc shopify.Service, recorder *metrics.Recorder) *customersync.Coordinator {
	month, day := cfg.Sync.Cutoff()
	eval := eligibility.NewEvaluator(cfg.Sync.AgePolicy,
		eligibility.WithFiscalCutoff(month, day),
		eligibility.WithThreshold(cfg.Sync.AgeThreshold),
	)
	return customersync.NewCoordinator(svc, eval, customersync.Config{
		TagPolicy:      cfg.Sync.TagPolicy,
		SubjectPolicy:  cfg.Sync.SubjectPolicy,
		MaxConcurrency: cfg.Sync.MaxConcurrency,
	}, customersync.WithObserver(recorder))
}

func newRouter(syncer customers.Syncer, recorder *metrics.Recorder, demo bool) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	// Base middleware stack
	router.Use(
		appmiddleware.Security(docsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(),
		appmiddleware.RequestID(),
		// RealIP trusts X-Real-IP and X-Forwarded-For. Only deploy behind a
		// proxy that overwrites them.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(1<<20), // 1 MB
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	router.Get("/health", health.Handler(demo))
	router.Method(http.MethodGet, "/metrics", recorder.Handler())
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respond.WriteRedirect(w, r, docsPath, http.StatusFound)
	})

	cfg := huma.DefaultConfig("Limerime Customer Sync API", Version)
	cfg.DocsPath = docsPath
	api := humachi.New(router, cfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)

	routes.Register(api, syncer)
	return router
}

// addCBORContent advertises application/cbor wherever an operation accepts
// or returns JSON.
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

func listenPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		// Leaves room for a full fan-out against a slow shop.
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 64 << 10, // 64 KB
	}
}
