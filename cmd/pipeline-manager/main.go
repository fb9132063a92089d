// cmd/pipeline-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"suitability-pipeline/internal/assessment"
	"suitability-pipeline/internal/authz"
	"suitability-pipeline/internal/catalog"
	commonaws "suitability-pipeline/internal/common/aws"
	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/database"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/notify"
	"suitability-pipeline/internal/recommend"
	"suitability-pipeline/internal/scoring"
	"suitability-pipeline/internal/storage"
	"suitability-pipeline/internal/workflow"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Storage ---
	store := storage.NewPostgresStore(pg.DB, log)
	if err := store.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}

	// --- Notifications ---
	cacheTTL := time.Duration(cfg.Database.Redis.CacheTTL) * time.Second
	var notifier notify.Notifier = notify.NewLogNotifier(log)
	var alerter *notify.OverdueAlerter
	if cfg.Notifications.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWSRegion)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		notifier = notify.NewSNSNotifier(snsClient,
			cfg.Notifications.ReviewDecidedTopic,
			cfg.Notifications.RecommendationTopic,
			log,
		)

		sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		alerter = notify.NewOverdueAlerter(sesClient,
			cfg.Notifications.AlertSender,
			cfg.Notifications.AlertSender,
			log,
		)
		zapLog.Info("AWS notification clients initialized",
			zap.String("region", cfg.Notifications.AWSRegion))
	}

	// --- Decision pipeline ---
	productCatalog := catalog.NewCachedCatalog(
		catalog.NewPostgresCatalog(pg.DB, log),
		redis.Client, cacheTTL, log,
	)
	authorizer := authz.NewPostgresAuthorizer(pg.DB, redis.Client, cacheTTL, log)
	scorer := scoring.NewEngine(cfg.Scoring, log)
	recommender := recommend.NewEngine(cfg.Recommendation, productCatalog, log)
	wf := workflow.NewEngine(store, authorizer, recommender, notifier, cfg.Workflow, log)
	// The assessment service is the entry point the surrounding service layer
	// invokes; no wire protocol is defined here.
	_ = assessment.NewService(store, scorer, wf, log)

	zapLog.Info("Decision pipeline initialized")

	// --- Overdue SLA sweep ---
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if alerter != nil && cfg.Notifications.OverdueSweepInterval > 0 {
		interval := time.Duration(cfg.Notifications.OverdueSweepInterval) * time.Minute
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case <-ticker.C:
					now := time.Now().UTC()
					overdue, err := wf.Overdue(sweepCtx)
					if err != nil {
						zapLog.Error("overdue sweep failed", zap.Error(err))
						continue
					}
					if err := alerter.Alert(sweepCtx, overdue, now); err != nil {
						zapLog.Error("overdue alert failed", zap.Error(err))
					}
				}
			}
		}()
		zapLog.Info("Overdue SLA sweep scheduled", zap.Duration("interval", interval))
	}

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				status := "ready"
				code := http.StatusOK
				if err := pg.Ping(r.Context()); err != nil {
					status = "degraded"
					code = http.StatusServiceUnavailable
				}
				w.WriteHeader(code)
				json.NewEncoder(w).Encode(map[string]string{
					"status": status,
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			zapLog.Info("Health/Metrics server listening", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping pipeline manager...")
	stopSweep()
	zapLog.Info("Pipeline manager stopped gracefully")
}
