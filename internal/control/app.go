// Package control wires configuration, fetchers, the orchestrator and the
// result sinks into a runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/batchfetch/internal/core/config"
	"github.com/vietddude/batchfetch/internal/core/domain"
	"github.com/vietddude/batchfetch/internal/core/worker"
	"github.com/vietddude/batchfetch/internal/health"
	redisclient "github.com/vietddude/batchfetch/internal/infra/redis"
	"github.com/vietddude/batchfetch/internal/infra/notify"
	"github.com/vietddude/batchfetch/internal/infra/storage"
	"github.com/vietddude/batchfetch/internal/infra/storage/memory"
	"github.com/vietddude/batchfetch/internal/infra/storage/postgres"
	"github.com/vietddude/batchfetch/internal/metrics"
	"github.com/vietddude/batchfetch/internal/orchestrator"
)

// App runs configured batches and ships their results to the configured sinks.
type App struct {
	cfg     config.AppConfig
	log     *slog.Logger
	orch    *orchestrator.Orchestrator
	handles []domain.Handle
	policy  domain.ConcurrencyPolicy
	retry   orchestrator.RetryPolicy
	targets *targetBuilder

	store       storage.OutcomeRepository
	failedRepo  *redisclient.FailedOutcomeRepo
	notifier    notify.Notifier
	db          *postgres.DB
	redisClient *redisclient.Client

	healthMon    *health.Monitor
	healthServer *health.Server

	runMu  sync.Mutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option customizes an App. Orchestrator options are appended after the defaults.
type Option func(*appOptions)

type appOptions struct {
	orch []orchestrator.Option
	rand orchestrator.RandSource
}

// WithOrchestratorOptions passes extra options to the orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(o *appOptions) { o.orch = append(o.orch, opts...) }
}

// WithRand sets the source used for retry jitter and start delays.
func WithRand(r orchestrator.RandSource) Option {
	return func(o *appOptions) { o.rand = r }
}

// NewApp creates an App with all dependencies initialized.
// PostgreSQL and Redis are used only when their URLs are configured.
func NewApp(ctx context.Context, cfg config.AppConfig, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	policy, err := domain.ParsePolicy(cfg.Batch.Policy)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		policy:    policy,
		retry:     retryPolicy(cfg.Batch.Retry, o.rand),
		healthMon: health.NewMonitor(),
	}

	a.targets = newTargetBuilder(cfg.Batch, o.rand)
	a.handles, err = a.targets.build(cfg.Targets)
	if err != nil {
		a.targets.close()
		return nil, err
	}

	// 1. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.store = postgres.NewOutcomeRepo(db)
		a.healthMon.AddComponent("postgres", db)
		log.Info("Using PostgreSQL storage")
	} else {
		a.store = memory.NewOutcomeStore()
		log.Info("Using Memory storage")
	}

	// 2. Failed-outcome queue
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redisClient = rc
		a.failedRepo = redisclient.NewFailedOutcomeRepo(rc)
		a.healthMon.AddComponent("redis", rc)
		log.Info("Using Redis failed-outcome queue")
	}

	// 3. Orchestrator
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(metrics.NewRecorder()),
		orchestrator.WithMaxConcurrency(cfg.Batch.MaxConcurrency),
	}
	if cfg.Webhook.URL != "" {
		a.notifier = notify.NewWebhook(cfg.Webhook)
		orchOpts = append(orchOpts, orchestrator.WithObserver(notify.Observer(a.notifier, cfg.Webhook.Timeout, log)))
		log.Info("Outcome callbacks enabled", "url", cfg.Webhook.URL)
	}
	a.orch = orchestrator.New(append(orchOpts, o.orch...)...)

	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)
	return a, nil
}

// Handles returns the handles built from the configured targets.
func (a *App) Handles() []domain.Handle {
	return a.handles
}

// Store returns the outcome repository in use.
func (a *App) Store() storage.OutcomeRepository {
	return a.store
}

// FailedRepo returns the Redis failed-outcome queue, or nil when Redis is not configured.
func (a *App) FailedRepo() *redisclient.FailedOutcomeRepo {
	return a.failedRepo
}

// Monitor returns the health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.healthMon
}

// RunOnce executes one batch over the configured targets.
// policyOverride, when not empty, replaces the configured policy for this run.
// Persistence failures are logged; only invalid input is returned as an error.
func (a *App) RunOnce(ctx context.Context, policyOverride string) (*domain.BatchResult, error) {
	policy := a.policy
	if strings.TrimSpace(policyOverride) != "" {
		p, err := domain.ParsePolicy(policyOverride)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	res, err := a.orch.RunBatch(ctx, a.handles, policy, a.retry)
	if err != nil {
		return nil, err
	}
	a.healthMon.Record(res)

	// Sinks must not be cut short by the cancellation that ended the batch.
	sinkCtx := context.WithoutCancel(ctx)
	if err := a.store.SaveBatch(sinkCtx, res); err != nil {
		a.log.Error("Failed to save batch", "batch", res.ID, "error", err)
	}
	if a.failedRepo != nil {
		for _, o := range res.Failures() {
			if err := a.failedRepo.Add(sinkCtx, res.ID, o); err != nil {
				a.log.Warn("Failed to queue failed outcome", "batch", res.ID, "index", o.Index, "error", err)
			}
		}
	}
	return res, nil
}

// Start runs the health server and, when an interval is configured, a
// batch loop. The first batch runs immediately.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// Start Health Server
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Pruner
	if a.cfg.Batch.Retention > 0 {
		pruner := worker.NewPruner(a.cfg.Batch.Retention, a.store, a.log)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			pruner.Start(ctx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop(ctx)
	}()
	return nil
}

func (a *App) loop(ctx context.Context) {
	run := func() {
		if _, err := a.RunOnce(ctx, ""); err != nil {
			a.log.Error("Batch rejected", "error", err)
		}
	}

	run()
	if a.cfg.Batch.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(a.cfg.Batch.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Stop stops the batch loop and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping batchfetch...")

	if a.cancel != nil {
		a.cancel()
	}
	err := a.healthServer.Stop(ctx)
	a.wg.Wait()
	a.close()
	return err
}

func (a *App) close() {
	a.targets.close()
	if a.notifier != nil {
		_ = a.notifier.Close()
	}
	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
