package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"extension-recovery/internal/admin"
	"extension-recovery/internal/common/alerting"
	"extension-recovery/internal/common/auth"
	"extension-recovery/internal/common/cache"
	"extension-recovery/internal/common/camunda"
	"extension-recovery/internal/common/config"
	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/common/metrics"
	"extension-recovery/internal/common/observability"
	"extension-recovery/internal/common/servicerecovery"
	"extension-recovery/internal/integration"
	"extension-recovery/internal/recovery"
	hee "extension-recovery/internal/workers/recovery/handle-extension-error"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func recoveryConfig(c config.RecoveryConfig) recovery.Config {
	return recovery.Config{
		PatternWindow:        c.PatternWindow,
		PatternThreshold:     c.PatternThreshold,
		BreakerThreshold:     c.BreakerThreshold,
		BreakerResetWindow:   c.BreakerResetWindow,
		FailureCountWindow:   c.FailureCountWindow,
		AttemptWindow:        c.AttemptWindow,
		StatisticsWindow:     c.StatisticsWindow,
		HistoryRetention:     c.HistoryRetention,
		HistoryMaxEntries:    c.HistoryMaxEntries,
		BreakerRetryAfter:    c.BreakerRetryAfter,
		InProgressRetryAfter: c.InProgressRetryAfter,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting extension recovery manager...", zap.String("environment", cfg.App.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	promMetrics := metrics.NewRecorder(prometheus.DefaultRegisterer)
	obs, err := observability.New(cfg.App.Name, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			zapLog.Warn("observability shutdown failed", zap.Error(err))
		}
	}()

	deps := recovery.Dependencies{
		Logger:   log.Named("recovery"),
		Recorder: recovery.MultiRecorder{promMetrics, obs.Recorder()},
		Tracer:   obs.Tracer(),
	}
	var checks []admin.Check

	// --- Redis cache and degradation store ---
	var (
		redisCache  *cache.RedisCache
		degradation *cache.DegradationStore
	)
	if cfg.Redis.Enabled {
		client := cache.NewRedisClient(cfg.Redis)
		redisCache = cache.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Integration.CacheTTL)

		err = retryWithBackoff(func() error { return redisCache.Ping(ctx) }, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer client.Close()

		deps.Cache = redisCache
		degradation = cache.NewDegradationStore(client, cfg.Redis.KeyPrefix, cfg.Redis.DegradationTTL)
		deps.Degradation = degradation
		checks = append(checks, admin.Check{Name: "redis", Fn: redisCache.Ping})
		zapLog.Info("Redis connected successfully")
	}

	// --- Keycloak ---
	if cfg.Keycloak.Enabled {
		kc := auth.NewKeycloakClient(
			cfg.Keycloak.URL,
			cfg.Keycloak.Realm,
			cfg.Keycloak.ClientID,
			cfg.Keycloak.ClientSecret,
			cfg.Keycloak.Timeout,
		)
		deps.Auth = kc
		checks = append(checks, admin.Check{Name: "keycloak", Fn: func(ctx context.Context) error {
			_, err := kc.AccessToken(ctx)
			return err
		}})
	}

	// --- Service recovery ---
	if cfg.ServiceRecovery.Enabled {
		deps.ServiceRecovery = servicerecovery.New(
			cfg.ServiceRecovery.BaseURL,
			cfg.ServiceRecovery.Token,
			cfg.ServiceRecovery.Timeout,
			log.Named("service_recovery"),
		)
	}

	// --- Escalation alerting ---
	var channels []recovery.Alerter
	if cfg.Alerting.SNS.Enabled || cfg.Alerting.SES.Enabled {
		awsCfg, err := alerting.LoadAWSConfig(ctx, cfg.Alerting.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config failed", zap.Error(err))
		}
		if cfg.Alerting.SNS.Enabled {
			channels = append(channels, alerting.NewSNSAlerter(awsCfg, cfg.Alerting.SNS.TopicARN))
		}
		if cfg.Alerting.SES.Enabled {
			channels = append(channels, alerting.NewSESAlerter(awsCfg, cfg.Alerting.SES.FromEmail, cfg.Alerting.SES.ToEmails))
		}
	}
	if cfg.Alerting.Elasticsearch.Enabled {
		es, err := alerting.NewElasticsearchAlerter(cfg.Alerting.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch alerter failed", zap.Error(err))
		}
		err = retryWithBackoff(func() error { return es.Ping(ctx) }, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		channels = append(channels, es)
		checks = append(checks, admin.Check{Name: "elasticsearch", Fn: es.Ping})
	}
	if len(channels) > 0 {
		deps.Alerter = alerting.NewMulti(log.Named("alerting"), channels...)
	}

	// --- Recovery manager ---
	manager, err := recovery.NewManager(recoveryConfig(cfg.Recovery), deps)
	if err != nil {
		zapLog.Fatal("recovery manager init failed", zap.Error(err))
	}
	recovery.Initialize(manager)
	defer recovery.Shutdown()

	adapterOpts := []integration.Option{
		integration.WithLogger(log.Named("integration")),
		integration.WithMaxRetries(cfg.Integration.MaxRetries),
		integration.WithMaxWait(cfg.Integration.MaxWait),
	}
	if redisCache != nil {
		adapterOpts = append(adapterOpts, integration.WithCacheWriter(redisCache))
	}
	adapter := integration.New(manager, adapterOpts...)

	zapLog.Info("Recovery manager initialized",
		zap.Bool("auth", deps.Auth != nil),
		zap.Bool("serviceRecovery", deps.ServiceRecovery != nil),
		zap.Bool("cache", deps.Cache != nil),
		zap.Int("alertChannels", len(channels)),
	)

	// --- Zeebe worker ---
	var jobWorker *camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		var zeebe *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         cfg.Camunda.RequestTimeout,
				RetryConfig:            camunda.DefaultRetryConfig,
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		checks = append(checks, admin.Check{Name: "zeebe", Fn: zeebe.HealthCheck})

		handlerCfg := hee.LoadConfig()
		if cfg.Camunda.Timeout > 0 {
			handlerCfg.Timeout = cfg.Camunda.Timeout
		}
		if cfg.Camunda.MaxJobsActive > 0 {
			handlerCfg.MaxJobsActive = cfg.Camunda.MaxJobsActive
		}

		handler := hee.NewHandler(handlerCfg, adapter, log).
			WithJobObserver(promMetrics).
			WithCommandRetry(zeebe.RetryConfig())
		jobWorker = camunda.NewWorker(zeebe.GetClient(), hee.TaskType, handlerCfg.MaxJobsActive, handler, log)
		jobWorker.Start()
	}

	// --- Admin / metrics server ---
	adminServer := admin.NewServer(manager, promhttp.Handler(), log.Named("admin"), checks...)
	if degradation != nil {
		adminServer.WithDegradations(degradation).WithCache(redisCache)
	}
	srv := &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           adminServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Admin server listening", zap.String("address", cfg.Admin.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("admin server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Admin.ShutdownTimeout)
	defer cancel()

	if jobWorker != nil {
		jobWorker.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("admin server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Extension recovery manager stopped")
}
