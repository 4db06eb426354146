// Command server runs the sessiond HTTP service: the session-key authority
// and the delegated task executor gate.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"golang.org/x/sync/errgroup"

	appservice "github.com/bitizen-labs/sessiond/internal/application/service"
	"github.com/bitizen-labs/sessiond/internal/config"
	domainservice "github.com/bitizen-labs/sessiond/internal/domain/service"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/audit"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/crypto"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/monitoring"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/persistence/postgres"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/ratelimit"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/redis"
	"github.com/bitizen-labs/sessiond/internal/infrastructure/settlement"
	"github.com/bitizen-labs/sessiond/internal/interfaces/http/handlers"
	"github.com/bitizen-labs/sessiond/internal/interfaces/http/middleware"
	"github.com/bitizen-labs/sessiond/internal/interfaces/http/router"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// Storage.
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to postgres", err)
	}
	defer db.Close()
	sessionRepo := postgres.NewSessionRepository(db, appLogger)

	gormDB, err := gorm.Open(gormpostgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		appLogger.Fatal(ctx, "failed to open gorm connection", err)
	}
	taskLogs, err := audit.NewGormTaskLogStore(gormDB, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize task log store", err)
	}

	// Redis-backed caches and rate limiting.
	redisConn, err := redis.NewConnection(ctx, &cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatal(ctx, "failed to connect to redis", err)
	}
	defer func() { _ = redisConn.Close() }()
	sessionCache := redis.NewSessionCache(redisConn, appLogger)
	revocations := redis.NewRevocationCache(redisConn)
	var rateLimiter domainservice.RateLimitService
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRedisRateLimiter(redisConn.Client, cfg.RateLimit.IssuePerMinute, appLogger)
	}

	// Key custody.
	var secretStore crypto.SecretStore
	if cfg.Vault.Enabled {
		vaultClient, err := crypto.NewVaultClient(&cfg.Vault, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "failed to create vault client", err)
		}
		secretStore = vaultClient
	} else {
		appLogger.Warn(ctx, "vault is disabled, using in-process key store")
		secretStore = crypto.NewMemorySecretStore()
	}
	keyVault := crypto.NewKeyManager(secretStore, appLogger)

	// Audit stream.
	var auditPublisher domainservice.AuditPublisher
	if cfg.Kafka.Enabled {
		auditPublisher = audit.NewKafkaProducer(&cfg.Kafka, appLogger)
		defer func() { _ = auditPublisher.Close() }()
	}

	// Settlement executor.
	var executor domainservice.TaskExecutor
	if cfg.Settlement.GatewayURL != "" {
		executor = settlement.NewGatewayClient(&cfg.Settlement, appLogger)
	} else {
		appLogger.Warn(ctx, "no settlement gateway configured, using stub executor")
		executor = settlement.NewStubExecutor(100*time.Millisecond, appLogger)
	}

	// Domain and application services.
	metrics := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	permissions := domainservice.NewPermissionService()
	spendPolicy := domainservice.NewSpendPolicy()
	sessionSvc := appservice.NewSessionAppService(
		sessionRepo, permissions, keyVault, sessionCache, revocations,
		auditPublisher, rateLimiter, metrics, appLogger)
	taskSvc := appservice.NewTaskAppService(
		sessionRepo, permissions, spendPolicy, keyVault, executor,
		revocations, taskLogs, auditPublisher, metrics, appLogger)

	// HTTP surface.
	sessionHandler := handlers.NewSessionHandler(sessionSvc, appLogger)
	taskHandler := handlers.NewTaskHandler(taskSvc, sessionSvc, taskLogs, appLogger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": db.HealthCheck,
		"redis":    redisConn.HealthCheck,
	})

	requestsTotal, requestDuration := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)
	observability := middleware.Observability(tracing.Tracer(), requestsTotal, requestDuration)

	r := router.NewRouter(
		cfg, appLogger, healthHandler, sessionHandler, taskHandler,
		middleware.RequirePrincipal(cfg.Auth.PrincipalJWTSecret, cfg.Auth.Issuer, appLogger),
		observability,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(r.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return r.Stop(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		appLogger.Error(context.Background(), "server exited with error", err)
	}
	appLogger.Info(context.Background(), "server stopped")
}
