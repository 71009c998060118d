package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-pos/internal/app"
	"github.com/noah-isme/toko-pos/internal/auth"
	"github.com/noah-isme/toko-pos/internal/cache"
	"github.com/noah-isme/toko-pos/internal/catalog"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/config"
	"github.com/noah-isme/toko-pos/internal/customer"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/health"
	"github.com/noah-isme/toko-pos/internal/inventory"
	"github.com/noah-isme/toko-pos/internal/lock"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/pos"
	"github.com/noah-isme/toko-pos/internal/ratelimit"
	"github.com/noah-isme/toko-pos/internal/sale"
	"github.com/noah-isme/toko-pos/internal/security"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTracing := app.StartTracing(ctx, cfg, "api", logger)
	defer stopTracing()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, "api", logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	taskRedis, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task queue")
	}
	taskClient := asynq.NewClient(taskRedis)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.HTTPBucketsMS), prometheus.DefaultRegisterer)
	posMetrics := obs.NewPOSMetrics(cfg.MetricsNamespace, prometheus.DefaultRegisterer)

	methods := &payment.Store{
		Source: payment.PGSource{Pool: deps.DB},
		Cache:  cache.NewJSON(deps.Redis, cfg.PaymentMethodsCacheTTL),
		Logger: logger,
	}
	variants := &catalog.Store{
		Source: catalog.PGSource{Pool: deps.DB},
		Cache:  cache.NewJSON(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger,
	}
	sales := &sale.Repository{Pool: deps.DB}
	reports := &sale.Reports{
		Source:   sales,
		Cache:    cache.NewJSON(deps.Redis, cfg.ReportCacheTTL),
		Logger:   logger,
		Location: cfg.StoreTimezone,
	}
	bus := &events.Bus{
		Store:     events.PGStore{Pool: deps.DB},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	posService := &pos.Service{
		Registry:  pos.NewRegistry(cfg.SessionIdleTTL, posMetrics),
		Catalog:   variants,
		Methods:   methods,
		Customers: customer.PGStore{Pool: deps.DB},
		Sales:     sales,
		Events:    bus,
		Stock:     inventory.Enqueuer{Client: taskClient, MaxRetry: cfg.QueueMaxRetry},
		Locker: lock.Locker{
			R:            deps.Redis,
			RetryBackoff: cfg.LockRetryBackoff,
			MaxWait:      cfg.LockMaxWait,
		},
		Metrics:      posMetrics,
		Logger:       logger,
		RoundingStep: cfg.CashRoundingStep,
		LockTTL:      cfg.LockTTL,
	}
	go posService.RunSweeper(ctx, cfg.SessionSweepInterval)

	verifier, err := auth.NewVerifier(cfg.AuthJWTSecret, cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthAlgorithm)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	rateLimiter, err := ratelimit.New(deps.Redis, cfg.RateLimit, "toko-pos:ratelimit")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: rateLimiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{HSTSMaxAge: cfg.HSTSMaxAge}.Middleware)
	r.Use(cors.Handler(corsOptions(cfg.CORSAllowedOrigins)))

	r.Handle("/metrics", promhttp.Handler())
	if cfg.PprofEnabled {
		if cfg.IsProduction() && cfg.PprofUser == "" {
			logger.Warn().Msg("pprof needs basic auth in production, not mounted")
		} else {
			r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
		}
	}

	healthHandler := health.Handler{Probes: []health.Probe{health.Postgres(deps.DB), health.Redis(deps.Redis)}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	posHandler := pos.NewHandler(posService, idem.Middleware)
	catalogHandler := &catalog.Handler{Store: variants}
	salesHandler := &sale.Handler{Sales: sales, Reports: reports}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(rateLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		v.Use(authMiddleware.RequireAuth)
		v.Route("/pos", posHandler.Routes)
		v.Route("/catalog", catalogHandler.Routes)
		v.Route("/sales", salesHandler.Routes)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Int("open_sessions", posService.Registry.Len()).Msg("server stopped")
}

// corsOptions allows any origin without credentials when none are
// configured. Requests authenticate with bearer tokens, not cookies.
func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
		opts.AllowCredentials = false
	}
	return opts
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
