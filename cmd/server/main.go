// Command server starts the video ingest control-plane HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"videoingest/internal/api"
	"videoingest/internal/collector"
	"videoingest/internal/eventbus"
	"videoingest/internal/fanout"
	"videoingest/internal/jobqueue"
	"videoingest/internal/lifecycle"
	"videoingest/internal/objectstore"
	"videoingest/internal/observability/logging"
	"videoingest/internal/observability/metrics"
	"videoingest/internal/server"
	"videoingest/internal/uploadsession"
	"videoingest/internal/videostore"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the metadata store")
	redisAddr := flag.String("redis-addr", "", "Redis address backing the event bus and job queue")
	redisPassword := flag.String("redis-password", "", "Redis password")
	objectEndpoint := flag.String("object-endpoint", "", "S3-compatible object storage endpoint")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectPathStyle := flag.Bool("object-path-style", false, "use path-style S3 addressing (required for most non-AWS providers)")
	multipartThresholdMB := flag.Int64("multipart-threshold-mb", 0, "file size in MiB above which uploads use multipart (default 100)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	uploadLimit := flag.Int("rate-upload-limit", 0, "maximum POST /api/uploads requests per window for a single IP")
	uploadWindow := flag.Duration("rate-upload-window", 0, "window for counting upload creation attempts")
	trustForwarded := flag.Bool("rate-trust-forwarded-headers", false, "trust proxy-provided client IP headers")
	trustedProxies := flag.String("rate-trusted-proxies", "", "comma separated CIDR blocks or IPs of trusted proxies")
	rateRedisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed upload-creation throttling (defaults to redis-addr)")
	rateRedisPassword := flag.String("rate-redis-password", "", "Redis password for distributed upload-creation throttling")
	collectorInterval := flag.Duration("collector-interval", 0, "interval between abandoned-upload sweeps (default 6h)")
	collectorAbandonedAfter := flag.Duration("collector-abandoned-after", 0, "age at which an incomplete multipart upload is considered abandoned (default 24h)")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired-session sweeps (default 15m)")
	adminOrigins := flag.String("cors-admin-origins", "", "comma separated origins allowed to call the control-plane API")
	viewerOrigins := flag.String("cors-viewer-origins", "", "comma separated origins allowed to call the viewer-facing API")
	contentSecurityPolicy := flag.String("security-csp", "", "override the default Content-Security-Policy header")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("VIDEOINGEST_LOG_LEVEL"))})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("VIDEOINGEST_ADDR"), ":8080")

	dsn := firstNonEmpty(*postgresDSN, os.Getenv("VIDEOINGEST_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Error("postgres dsn is required (--postgres-dsn, VIDEOINGEST_POSTGRES_DSN, or DATABASE_URL)")
		os.Exit(1)
	}

	ctx := context.Background()
	meta, err := videostore.New(ctx, dsn, videostore.WithLogger(logging.WithComponent(logger, "videostore")))
	if err != nil {
		logger.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}

	objects, err := objectstore.New(ctx,
		objectstore.WithEndpoint(firstNonEmpty(*objectEndpoint, os.Getenv("VIDEOINGEST_OBJECT_ENDPOINT"))),
		objectstore.WithRegion(firstNonEmpty(*objectRegion, os.Getenv("VIDEOINGEST_OBJECT_REGION"))),
		objectstore.WithCredentials(
			firstNonEmpty(*objectAccessKey, os.Getenv("VIDEOINGEST_OBJECT_ACCESS_KEY")),
			firstNonEmpty(*objectSecretKey, os.Getenv("VIDEOINGEST_OBJECT_SECRET_KEY")),
		),
		objectstore.WithBucket(firstNonEmpty(*objectBucket, os.Getenv("VIDEOINGEST_OBJECT_BUCKET"))),
		objectstore.WithPathStyle(resolveBool(*objectPathStyle, "VIDEOINGEST_OBJECT_PATH_STYLE")),
		objectstore.WithLogger(logging.WithComponent(logger, "objectstore")),
	)
	if err != nil {
		logger.Error("failed to configure object storage", "error", err)
		os.Exit(1)
	}

	busAddr := firstNonEmpty(*redisAddr, os.Getenv("VIDEOINGEST_REDIS_ADDR"))
	if busAddr == "" {
		logger.Error("redis addr is required (--redis-addr or VIDEOINGEST_REDIS_ADDR)")
		os.Exit(1)
	}
	busPassword := firstNonEmpty(*redisPassword, os.Getenv("VIDEOINGEST_REDIS_PASSWORD"))

	// One RedisBus instance per consumer group: the reconciler and the
	// fan-out service subscribe independently, so each needs its own group
	// to receive every event rather than competing for the same messages.
	reconcilerBus, err := eventbus.NewRedis(eventbus.RedisConfig{
		Addr: busAddr, Password: busPassword, Group: "lifecycle-reconciler",
		Logger: logging.WithComponent(logger, "eventbus"),
	})
	if err != nil {
		logger.Error("failed to configure reconciler event bus", "error", err)
		os.Exit(1)
	}
	fanoutBus, err := eventbus.NewRedis(eventbus.RedisConfig{
		Addr: busAddr, Password: busPassword, Group: "status-fanout",
		Logger: logging.WithComponent(logger, "eventbus"),
	})
	if err != nil {
		logger.Error("failed to configure fan-out event bus", "error", err)
		os.Exit(1)
	}

	producer, err := jobqueue.NewRedis(jobqueue.RedisConfig{Addr: busAddr, Password: busPassword})
	if err != nil {
		logger.Error("failed to configure job queue producer", "error", err)
		os.Exit(1)
	}

	var sessionOpts []uploadsession.Option
	if mb := *multipartThresholdMB; mb > 0 {
		sessionOpts = append(sessionOpts, uploadsession.WithMultipartThreshold(mb*1024*1024))
	}
	sessions := uploadsession.New(objects, meta, sessionOpts...)

	ctrl := lifecycle.New(meta, objects, sessions, reconcilerBus, lifecycle.WithLogger(logging.WithComponent(logger, "lifecycle")))
	fan := fanout.New(fanoutBus, logging.WithComponent(logger, "fanout"))
	reconciler := lifecycle.NewReconciler(ctrl, reconcilerBus, logging.WithComponent(logger, "reconciler"))
	dispatcher := videostore.NewDispatcher(meta, producer, videostore.WithDispatcherLogger(logging.WithComponent(logger, "outbox")))
	sweeper := collector.New(objects, meta,
		collector.WithInterval(*collectorInterval),
		collector.WithAbandonedAfter(*collectorAbandonedAfter),
		collector.WithLogger(logging.WithComponent(logger, "collector")),
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go runBackground(workerCtx, logger, "fanout", fan.Run)
	go runBackground(workerCtx, logger, "reconciler", reconciler.Run)
	go func() { dispatcher.Run(workerCtx) }()
	go func() {
		if err := sweeper.Run(workerCtx); err != nil {
			logger.Error("collector stopped", "error", err)
		}
	}()

	purgeInterval := *sessionPurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = 15 * time.Minute
	}
	sessionPurgeStop := startSessionPurgeWorker(workerCtx, logging.WithComponent(logger, "session-purger"), newStoreSessionPurger(meta), purgeInterval)
	defer sessionPurgeStop()

	handler := api.New(ctrl, fan, meta, objects, logging.WithComponent(logger, "api"))

	rateCfg := server.RateLimitConfig{
		GlobalRPS:             *globalRPS,
		GlobalBurst:           *globalBurst,
		UploadLimit:           *uploadLimit,
		UploadWindow:          *uploadWindow,
		TrustForwardedHeaders: resolveBool(*trustForwarded, "VIDEOINGEST_RATE_TRUST_FORWARDED_HEADERS"),
		TrustedProxies:        splitAndTrim(firstNonEmpty(*trustedProxies, os.Getenv("VIDEOINGEST_RATE_TRUSTED_PROXIES"))),
		RedisAddr:             firstNonEmpty(*rateRedisAddr, busAddr),
		RedisPassword:         firstNonEmpty(*rateRedisPassword, busPassword),
		RedisTimeout:          2 * time.Second,
	}

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("VIDEOINGEST_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("VIDEOINGEST_TLS_KEY")),
		},
		RateLimit: rateCfg,
		CORS: server.CORSConfig{
			AdminOrigins:  splitAndTrim(firstNonEmpty(*adminOrigins, os.Getenv("VIDEOINGEST_CORS_ADMIN_ORIGINS"))),
			ViewerOrigins: splitAndTrim(firstNonEmpty(*viewerOrigins, os.Getenv("VIDEOINGEST_CORS_VIEWER_ORIGINS"))),
		},
		Security: server.SecurityConfig{
			ContentSecurityPolicy: firstNonEmpty(*contentSecurityPolicy, os.Getenv("VIDEOINGEST_SECURITY_CSP")),
		},
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("video ingest API listening", "addr", listenAddr)
		logger.Info("metrics endpoint available", "path", "/metrics")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	workerCancel()
	sessionPurgeStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	meta.Close()

	logger.Info("server stopped")
}

func runBackground(ctx context.Context, logger *slog.Logger, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		logger.Error(name+" stopped", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveBool(flagValue bool, envName string) bool {
	if flagValue {
		return true
	}
	if v, ok := os.LookupEnv(envName); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return false
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
