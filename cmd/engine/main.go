// cmd/engine/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apply-engine/internal/ai"
	"apply-engine/internal/automation"
	"apply-engine/internal/common/config"
	"apply-engine/internal/common/database"
	"apply-engine/internal/common/httpclient"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/discovery"
	"apply-engine/internal/events"
	"apply-engine/internal/matcher"
	"apply-engine/internal/notify"
	"apply-engine/internal/queue"
	"apply-engine/internal/repository"
	"apply-engine/internal/session"
	"apply-engine/internal/worker"
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

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting automation engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected")

	// --- Queue ---
	dispatcher := queue.NewDispatcher(rdb.Client, cfg.Queue, log)
	if err := dispatcher.EnsureGroup(ctx); err != nil {
		zapLog.Fatal("consumer group setup failed", zap.Error(err))
	}

	repo := repository.NewPostgres(pg.DB, log)
	publisher := events.NewRedisPublisher(rdb.Client, cfg.Queue.EventChannel, log)

	// --- Browser sessions ---
	launcher, err := session.NewPlaywrightLauncher(cfg.Browser.Headless)
	if err != nil {
		zapLog.Fatal("playwright start failed", zap.Error(err))
	}
	defer launcher.Stop()
	sessions := session.NewManager(launcher, cfg.Browser.ProfilesDir, log)
	defer sessions.CloseAll()

	// --- AI (optional: the engine degrades to deterministic-only without it) ---
	var generator ai.ContentGenerator
	var scorer discovery.RelevanceScorer
	if cfg.AI.APIKey != "" {
		g, err := ai.NewGenerator(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			zapLog.Fatal("AI client init failed", zap.Error(err))
		}
		generator = g
		scorer = ai.NewScorer(g, cfg.Discovery.AIScoreBudget, log)
		zapLog.Info("AI client initialized", zap.String("model", cfg.AI.Model))
	} else {
		zapLog.Warn("no AI API key configured, running deterministic-only")
	}

	// --- Discovery ---
	classifier := matcher.New(cfg.Matcher)
	var sources []discovery.Source
	if cfg.Discovery.BoardURL != "" {
		sources = append(sources, discovery.NewHTTPBoardSource(
			"board", cfg.Discovery.BoardURL,
			httpclient.NewClient(30*time.Second),
			cfg.Discovery.MaxPerSource, log,
		))
	}
	if cfg.Discovery.SearchURL != "" {
		sources = append(sources, discovery.NewBrowserBoardSource(
			sessions, cfg.Discovery.UserID, cfg.Discovery.Platform,
			cfg.Discovery.SearchURL, cfg.Discovery.MaxPerSource, log,
		))
	}
	pipeline := discovery.NewPipeline(sources, repo, classifier, scorer, dispatcher, cfg.AI, log)

	// --- Notifications ---
	var notifiers []notify.Notifier
	if cfg.Notifications.Email.Enabled {
		email, err := notify.NewEmailNotifier(ctx, cfg.Notifications.Email)
		if err != nil {
			zapLog.Fatal("email notifier init failed", zap.Error(err))
		}
		notifiers = append(notifiers, email)
	}
	if cfg.Notifications.Telegram.Enabled {
		telegram, err := notify.NewTelegramNotifier(cfg.Notifications.Telegram)
		if err != nil {
			zapLog.Fatal("telegram notifier init failed", zap.Error(err))
		}
		notifiers = append(notifiers, telegram)
	}
	fanout := notify.NewFanout(log, notifiers...)

	// --- Worker ---
	machine := automation.NewMachine(cfg.Automation, cfg.Browser.AutoSubmit, publisher, log)
	processor := worker.NewProcessor(dispatcher, repo, sessions, machine, fanout, generator, cfg.AI, cfg.Automation, log)

	// Out-of-band full-run triggers share the session cache with the consumer.
	triggers := events.NewTriggerSubscriber(rdb.Client, cfg.Queue.TriggerChannel, log).Listen(ctx)
	go processor.HandleTriggers(ctx, triggers, pipeline)

	// Periodic discovery for the configured user.
	if cfg.Discovery.Interval > 0 && cfg.Discovery.UserID != "" {
		go func() {
			ticker := time.NewTicker(cfg.Discovery.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := pipeline.Run(ctx, cfg.Discovery.UserID); err != nil {
						zapLog.Warn("scheduled discovery run failed", zap.Error(err))
					}
				}
			}
		}()
	}

	// --- Metrics ---
	if cfg.Metrics.Enabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info("metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Consume loop ---
	runErr := make(chan error, 1)
	go func() { runErr <- processor.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zapLog.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			// Queue-connection failures end the process; the supervisor
			// restarts it.
			zapLog.Fatal("worker loop terminated", zap.Error(err))
		}
	}

	zapLog.Info("engine stopped")
}
