package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	domrepo "CryptoCast/internal/domain/repository"
	applogger "CryptoCast/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Reloadable rebuilds the served models and reports how many are live.
type Reloadable interface {
	Reload(ctx context.Context) (int, error)
}

// CacheInvalidator drops results computed by a previous model generation.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context) error
}

// ModelReloader refreshes the model registry on a cron schedule.
type ModelReloader struct {
	registry Reloadable
	cache    CacheInvalidator
	metrics  domrepo.Metrics
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	l        *applogger.Logger

	mu sync.Mutex
}

// NewModelReloader creates a reloader. An empty schedule disables periodic reloads;
// ReloadNow still works.
func NewModelReloader(registry Reloadable, invalidator CacheInvalidator, metrics domrepo.Metrics, schedule string, l *applogger.Logger) *ModelReloader {
	if l == nil {
		l = applogger.Nop()
	}
	return &ModelReloader{
		registry: registry,
		cache:    invalidator,
		metrics:  metrics,
		schedule: schedule,
		timeout:  time.Minute,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		l:        l,
	}
}

// ReloadNow rebuilds the registry once. Concurrent calls are serialized.
func (r *ModelReloader) ReloadNow(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	n, err := r.registry.Reload(ctx)
	r.metrics.RecordLatency("model_reload", time.Since(start).Seconds())
	if err != nil {
		r.metrics.RecordReload("error", n)
		r.l.Error("model reload failed", applogger.Int("models", n), applogger.Error(err))
		return n, err
	}
	r.metrics.RecordReload("ok", n)

	if r.cache != nil {
		if err := r.cache.InvalidateCache(ctx); err != nil {
			r.metrics.RecordError("cache_purge")
			r.l.Warn("prediction cache not purged after reload", applogger.Error(err))
		}
	}
	return n, nil
}

// Start registers the schedule and starts the cron runner.
func (r *ModelReloader) Start() error {
	if r.schedule == "" {
		r.l.Info("periodic model reload disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, r.tick); err != nil {
		return fmt.Errorf("register model reload %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.l.Info("model reloader started", applogger.String("schedule", r.schedule))
	return nil
}

// Stop stops the runner and waits for an in-flight reload.
func (r *ModelReloader) Stop() {
	<-r.cron.Stop().Done()
	r.l.Info("model reloader stopped")
}

func (r *ModelReloader) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_, _ = r.ReloadNow(ctx)
}
