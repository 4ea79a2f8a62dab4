// Command verdant runs the Verdant chat server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/filestore"
	vhttp "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/http"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/invoker"
	vnats "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/nats"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/natskv"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/ocr"
	verdantotel "github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/otel"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/ristretto"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/search"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/adapter/tiered"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/convlock"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/routing"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/middleware"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/cache"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/port/tools"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/resilience"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/service"
)

const (
	shutdownTimeout    = 15 * time.Second
	limiterSweep       = time.Minute
	limiterIdle        = 10 * time.Minute
	l1ExpireWithL2     = 30 * time.Second
	readHeaderTimeout  = 10 * time.Second
	idleTimeout        = 120 * time.Second
	writeTimeoutMargin = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"conversations_dir", cfg.Storage.ConversationsDir,
		"invoker", cfg.Invoker.Command,
		"nats", cfg.NATS.URL != "",
		"otel", cfg.Telemetry.OTLPEndpoint != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	shutdownOtel, err := verdantotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service, log)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := verdantotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	st, err := filestore.New(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("filestore: %w", err)
	}

	l1, err := ristretto.New(cfg.Tools.CacheSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()
	var toolCache cache.Cache = l1

	var queue *vnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = vnats.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Drain() }()

		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.NATS.KVBucket, cfg.Tools.CacheTTL)
		if err != nil {
			log.Warn("nats kv unavailable, using in-process cache only", "bucket", cfg.NATS.KVBucket, "error", err)
		} else {
			toolCache = tiered.New(l1, kv, l1ExpireWithL2, log)
		}
	}

	inv, err := invoker.New(invoker.Config{
		Command:       cfg.Invoker.Command,
		Env:           upstreamEnv(cfg.Upstream),
		MaxConcurrent: cfg.Invoker.MaxConcurrent,
	}, log)
	if err != nil {
		return fmt.Errorf("invoker: %w", err)
	}

	ocrClient, webClient, deepClient := toolClients(cfg)

	// --- Services ---

	locks := convlock.New()
	engine := routing.NewEngine(routing.Config{
		FallbackLight:   cfg.Routing.FallbackLight,
		FallbackTooling: cfg.Routing.FallbackTooling,
		FallbackHeavy:   cfg.Routing.FallbackHeavy,
		LightTokens:     cfg.Routing.LightTokens,
		ToolingTokens:   cfg.Routing.ToolingTokens,
		HeavyTokens:     cfg.Routing.HeavyTokens,
	})

	toolSvc := service.NewToolContextService(ocrClient, webClient, deepClient, toolCache, cfg.Tools.CacheTTL, log)
	toolSvc.SetMetrics(metrics)

	chatSvc := service.NewChatService(st, st, locks, engine, toolSvc, inv, service.ChatConfig{
		DefaultModel:    cfg.Upstream.DefaultModel,
		UpstreamKeySet:  strings.TrimSpace(cfg.Upstream.APIKey) != "",
		FailoverEnabled: cfg.Invoker.FailoverEnabled,
		FallbackModel:   cfg.Invoker.FallbackModel,
		RetryBackoff:    cfg.Invoker.RetryBackoff,
		FlushBatch:      cfg.Invoker.FlushBatch,
		FlushInterval:   cfg.Invoker.FlushInterval,
	}, log)
	chatSvc.SetMetrics(metrics)
	if queue != nil {
		chatSvc.SetPublisher(queue)
	}

	handlers := &vhttp.Handlers{
		Chat:          chatSvc,
		Conversations: service.NewConversationService(st, locks, log),
		Dashboard:     service.NewDashboardService(st, log),
		ChatBodyLimit: cfg.Server.MaxBodyBytes,
	}

	// --- HTTP ---

	limiter := middleware.NewRateLimiter(cfg.Server.ChatRate, cfg.Server.ChatBurst)
	limiter.StartCleanup(ctx, limiterSweep, limiterIdle)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(vhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(vhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(vhttp.SecurityHeaders)
	r.Use(verdantotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(vhttp.Timeout(cfg.Server.RequestTimeout))

	vhttp.MountRoutes(r, handlers, limiter.Handler)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.Server.RequestTimeout + writeTimeoutMargin,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// toolClients builds the OCR and search clients, each behind its own
// breaker. A client whose key is missing is still returned and reports a
// configuration error when used.
func toolClients(cfg *config.Config) (tools.OCR, tools.Searcher, tools.Searcher) {
	newBreaker := func() *resilience.Breaker {
		return resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	}

	o := ocr.NewClient(cfg.Tools.OCRURL, cfg.Tools.OCRAPIKey, cfg.Tools.OCRModel, cfg.Tools.Timeout)
	o.SetBreaker(newBreaker())

	web := search.NewClient(search.Config{
		Mode:    tools.ModeWeb,
		BaseURL: cfg.Tools.WebSearchURL,
		APIKey:  firstNonEmpty(cfg.Tools.WebSearchKey, cfg.Upstream.APIKey),
		Model:   cfg.Tools.WebModel,
		Timeout: cfg.Tools.Timeout,
	})
	web.SetBreaker(newBreaker())

	deep := search.NewClient(search.Config{
		Mode:    tools.ModeDeep,
		BaseURL: cfg.Tools.DeepSearchURL,
		APIKey:  firstNonEmpty(cfg.Tools.DeepSearchKey, cfg.Upstream.APIKey),
		Model:   cfg.Tools.DeepModel,
		Timeout: cfg.Tools.Timeout,
	})
	deep.SetBreaker(newBreaker())

	return o, web, deep
}

// upstreamEnv passes the upstream settings to the invocation process, which
// may not share the server's config file.
func upstreamEnv(u config.Upstream) []string {
	var env []string
	for _, kv := range [][2]string{
		{"DEDALUS_API_KEY", u.APIKey},
		{"DEDALUS_API_BASE_URL", u.BaseURL},
		{"DEDALUS_MODEL", u.DefaultModel},
	} {
		if kv[1] != "" {
			env = append(env, kv[0]+"="+kv[1])
		}
	}
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
