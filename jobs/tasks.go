package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/vantage-tms/vantage-tms/internal/cache"
	jobmetrics "github.com/vantage-tms/vantage-tms/internal/jobs"
	"github.com/vantage-tms/vantage-tms/internal/session"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes expired session rows. Expired sessions are
	// already invisible to lookups; the sweep only reclaims storage.
	TaskSessionSweep = "session:sweep"
	// TaskCacheInvalidate re-runs a cache invalidation whose direct
	// attempt failed. Deleting cache keys is idempotent, so the task is
	// safe to retry any number of times.
	TaskCacheInvalidate = "cache:invalidate"
)

// CacheInvalidatePayload lists the cache keys to delete.
type CacheInvalidatePayload struct {
	Keys []string `json:"keys"`
}

// NewCacheInvalidateTask constructs an Asynq task.
func NewCacheInvalidateTask(payload CacheInvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCacheInvalidate, data, asynq.MaxRetry(10)), nil
}

// SessionSweepJob wraps the expired-session cleanup.
type SessionSweepJob struct {
	sessions *session.Service
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewSessionSweepJob constructs the sweep job.
func NewSessionSweepJob(sessions *session.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	return &SessionSweepJob{sessions: sessions, logger: logger, metrics: metrics}
}

func (j *SessionSweepJob) jobMetrics() *jobmetrics.Metrics {
	if j.metrics != nil {
		return j.metrics
	}
	return defaultJobMetrics
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.jobMetrics().Track(TaskSessionSweep)
	removed, err := j.sessions.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("session sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if removed > 0 {
		j.logger.Info("session sweep", slog.Int64("removed", removed))
	}
	return tracker.End(nil)
}

// CacheInvalidateJob deletes the keys named in the task payload.
type CacheInvalidateJob struct {
	store   cache.Store
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewCacheInvalidateJob constructs the invalidation retry job.
func NewCacheInvalidateJob(store cache.Store, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheInvalidateJob {
	return &CacheInvalidateJob{store: store, logger: logger, metrics: metrics}
}

func (j *CacheInvalidateJob) jobMetrics() *jobmetrics.Metrics {
	if j.metrics != nil {
		return j.metrics
	}
	return defaultJobMetrics
}

// Handle processes TaskCacheInvalidate tasks.
func (j *CacheInvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.jobMetrics().Track(TaskCacheInvalidate)
	var payload CacheInvalidatePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if len(payload.Keys) == 0 {
		return tracker.End(nil)
	}
	if err := j.store.Delete(ctx, payload.Keys...); err != nil {
		j.logger.Warn("invalidation retry failed", slog.Int("keys", len(payload.Keys)), slog.Any("error", err))
		return tracker.End(err)
	}
	for family, count := range countByFamily(payload.Keys) {
		j.jobMetrics().AddRetriedKeys(family, count)
	}
	return tracker.End(nil)
}

func countByFamily(keys []string) map[string]int {
	families := make(map[string]int, 2)
	for _, key := range keys {
		family := key
		if idx := strings.IndexByte(key, ':'); idx > 0 {
			family = key[:idx]
		}
		families[family]++
	}
	return families
}
