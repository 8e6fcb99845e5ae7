// Command server starts the mediadrop HTTP API service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"mediadrop/internal/api"
	"mediadrop/internal/auth"
	"mediadrop/internal/observability/logging"
	"mediadrop/internal/observability/metrics"
	"mediadrop/internal/server"
	"mediadrop/internal/storage"
)

const (
	modeDevelopment = "development"
	modeProduction  = "production"

	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	dataPath := flag.String("data", "", "path to the JSON datastore snapshot")
	mediaDir := flag.String("media-dir", "", "local directory for media bytes when object storage is not configured")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when opening a Postgres connection")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for media files")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for media URLs")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	uploadLimit := flag.Int("rate-upload-limit", 0, "maximum upload attempts per window for a single IP")
	uploadWindow := flag.Duration("rate-upload-window", 0, "window for counting upload attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed upload throttling")
	redisUsername := flag.String("rate-redis-username", "", "Redis username for distributed upload throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed upload throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("MEDIADROP_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("MEDIADROP_LOG_FORMAT")),
	})

	serverMode := modeValue(*mode, os.Getenv("MEDIADROP_MODE"))
	listenAddr := firstNonEmpty(*addr, os.Getenv("MEDIADROP_ADDR"), defaultAddr)

	objectCfg := storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("MEDIADROP_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("MEDIADROP_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("MEDIADROP_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("MEDIADROP_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("MEDIADROP_OBJECT_BUCKET")),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("MEDIADROP_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("MEDIADROP_OBJECT_PUBLIC_ENDPOINT")),
		UseSSL:         boolValue(*objectUseSSL, os.Getenv("MEDIADROP_OBJECT_USE_SSL"), logger, "MEDIADROP_OBJECT_USE_SSL"),
	}

	localMediaDir := firstNonEmpty(*mediaDir, os.Getenv("MEDIADROP_MEDIA_DIR"))
	options := []storage.Option{
		storage.WithObjectStorage(objectCfg),
		storage.WithMediaDir(localMediaDir),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		repo         storage.Repository
		serveMediaAt string
	)
	driver := strings.ToLower(firstNonEmpty(*storageDriver, os.Getenv("MEDIADROP_STORAGE_DRIVER"), "json"))
	switch driver {
	case "json":
		store, err := storage.NewStorage(firstNonEmpty(*dataPath, os.Getenv("MEDIADROP_DATA")), options...)
		if err != nil {
			logger.Error("failed to open datastore", "error", err)
			os.Exit(1)
		}
		repo = store
		if dir, ok := store.MediaDir(); ok {
			serveMediaAt = dir
		}
	case "postgres":
		cfg := storage.PostgresConfig{
			DSN:                 firstNonEmpty(*postgresDSN, os.Getenv("MEDIADROP_POSTGRES_DSN")),
			MaxConnections:      int32(intValue(*postgresMaxConns, os.Getenv("MEDIADROP_POSTGRES_MAX_CONNS"), logger, "MEDIADROP_POSTGRES_MAX_CONNS")),
			MinConnections:      int32(intValue(*postgresMinConns, os.Getenv("MEDIADROP_POSTGRES_MIN_CONNS"), logger, "MEDIADROP_POSTGRES_MIN_CONNS")),
			MaxConnLifetime:     *postgresMaxConnLifetime,
			MaxConnIdleTime:     *postgresMaxConnIdle,
			HealthCheckInterval: *postgresHealthInterval,
			ConnectTimeout:      *postgresConnectTimeout,
			ApplicationName:     "mediadrop",
		}
		pgRepo, err := storage.NewPostgresRepository(ctx, cfg, options...)
		if err != nil {
			logger.Error("failed to open postgres datastore", "error", err)
			os.Exit(1)
		}
		repo = pgRepo
		if strings.TrimSpace(objectCfg.Bucket) == "" {
			serveMediaAt = localMediaDir
		}
	default:
		logger.Error("unknown storage driver", "driver", driver)
		os.Exit(1)
	}

	verifier := auth.NewVerifier(auth.WithLogger(logging.WithComponent(logger, "auth")))
	if err := verifier.Init(); err != nil {
		// Reported here; verification keeps failing until the configuration
		// is fixed and the process restarts.
		logger.Error("credential verifier unavailable", "error", err)
	}

	handler := api.New(repo, verifier, logging.WithComponent(logger, "api"), serverMode == modeDevelopment)
	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     floatValue(*globalRPS, os.Getenv("MEDIADROP_RATE_GLOBAL_RPS"), logger, "MEDIADROP_RATE_GLOBAL_RPS"),
			GlobalBurst:   intValue(*globalBurst, os.Getenv("MEDIADROP_RATE_GLOBAL_BURST"), logger, "MEDIADROP_RATE_GLOBAL_BURST"),
			UploadLimit:   intValue(*uploadLimit, os.Getenv("MEDIADROP_RATE_UPLOAD_LIMIT"), logger, "MEDIADROP_RATE_UPLOAD_LIMIT"),
			UploadWindow:  *uploadWindow,
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("MEDIADROP_RATE_REDIS_ADDR")),
			RedisUsername: firstNonEmpty(*redisUsername, os.Getenv("MEDIADROP_RATE_REDIS_USERNAME")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("MEDIADROP_RATE_REDIS_PASSWORD")),
			RedisTimeout:  *redisTimeout,
		},
		Logger:   logger,
		Metrics:  metrics.Default(),
		MediaDir: serveMediaAt,
	})
	if err != nil {
		logger.Error("failed to configure server", "error", err)
		os.Exit(1)
	}

	logger.Info("server starting",
		"addr", listenAddr,
		"mode", serverMode,
		"storage_driver", driver,
		"auth_state", verifier.State().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := repo.Close(closeCtx); err != nil {
		logger.Error("datastore close failed", "error", err)
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

func modeValue(flagValue, envValue string) string {
	mode := strings.ToLower(firstNonEmpty(flagValue, envValue, modeProduction))
	switch mode {
	case modeDevelopment, modeProduction:
		return mode
	default:
		return modeProduction
	}
}

type warnLogger interface {
	Warn(msg string, args ...any)
}

func intValue(flagValue int, envValue string, logger warnLogger, name string) int {
	if flagValue != 0 {
		return flagValue
	}
	trimmed := strings.TrimSpace(envValue)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		logger.Warn(fmt.Sprintf("invalid %s", name), "value", envValue, "error", err)
		return 0
	}
	return parsed
}

func floatValue(flagValue float64, envValue string, logger warnLogger, name string) float64 {
	if flagValue != 0 {
		return flagValue
	}
	trimmed := strings.TrimSpace(envValue)
	if trimmed == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		logger.Warn(fmt.Sprintf("invalid %s", name), "value", envValue, "error", err)
		return 0
	}
	return parsed
}

func boolValue(flagValue bool, envValue string, logger warnLogger, name string) bool {
	if flagValue {
		return true
	}
	trimmed := strings.TrimSpace(envValue)
	if trimmed == "" {
		return false
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		logger.Warn(fmt.Sprintf("invalid %s", name), "value", envValue, "error", err)
		return false
	}
	return parsed
}
