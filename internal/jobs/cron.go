package jobs

import (
	"context"
	"log/slog"
	"time"

	"salon-leads/internal/leads"
	"salon-leads/internal/metrics"
	"salon-leads/internal/query"

	"github.com/robfig/cron/v3"
)

// Counter computes global bucket counts. query.Service satisfies it.
type Counter interface {
	Counts(ctx context.Context, viewerID string, base leads.Filter) (query.Counts, error)
}

// CronManager runs the scheduled, read-only jobs.
type CronManager struct {
	cron    *cron.Cron
	counter Counter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewCronManager(counter Counter, m *metrics.Metrics, logger *slog.Logger) *CronManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronManager{
		cron:    cron.New(),
		counter: counter,
		metrics: m,
		logger:  logger,
	}
}

// SetupJobs registers the bucket gauge refresh on schedule (a cron expression or @every).
func (cm *CronManager) SetupJobs(schedule string) error {
	_, err := cm.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := cm.RefreshBucketGauges(ctx); err != nil {
			cm.logger.Error("bucket gauge refresh failed", "err", err)
		}
	})
	return err
}

// RefreshBucketGauges publishes the global bucket counts. my_leads is per viewer and is skipped.
func (cm *CronManager) RefreshBucketGauges(ctx context.Context) error {
	c, err := cm.counter.Counts(ctx, "", leads.Filter{})
	if err != nil {
		return err
	}
	for _, b := range query.Buckets {
		if b == query.BucketMyLeads {
			continue
		}
		cm.metrics.SetBucket(string(b), c.Get(b))
	}
	cm.logger.Debug("bucket gauges refreshed", "all", c.All, "unassigned", c.Unassigned)
	return nil
}

func (cm *CronManager) Start() {
	cm.cron.Start()
	cm.logger.Info("cron jobs started", "entries", len(cm.cron.Entries()))
}

// Stop halts scheduling and waits for a running job to finish or ctx to expire.
func (cm *CronManager) Stop(ctx context.Context) {
	done := cm.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
