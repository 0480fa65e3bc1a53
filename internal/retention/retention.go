// Package retention prunes old invocation journal records on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"funcgate/pkg/config"
	"funcgate/pkg/journal"
	"funcgate/pkg/logger"
)

const defaultCron = "0 2 * * *"

// Start starts the retention scheduler when enabled. It returns a cancel
// func that stops the scheduler.
func Start(ctx context.Context, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}
	if !journal.Ready() {
		return nil, fmt.Errorf("retention enabled but journal is not")
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	period, err := time.ParseDuration(cfg.Period)
	if err != nil || period <= 0 {
		return nil, fmt.Errorf("invalid retention period %q", cfg.Period)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", cfg.Period)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, period)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and prunes records older
// than the configured period.
func runScheduler(ctx context.Context, cronExpr string, period time.Duration) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_next_tick_failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		case <-time.After(next.Sub(now)):
		}
		RunOnce(period)
	}
}

// RunOnce prunes journal records older than period. Exposed so tests and
// operators can trigger a run on demand.
func RunOnce(period time.Duration) {
	cutoff := time.Now().UTC().Add(-period)
	n, err := journal.PruneBefore(cutoff)
	if err != nil {
		logger.Error("retention_prune_failed", "error", err)
		return
	}
	logger.Info("retention_pruned", "records", n, "cutoff", cutoff.Format(time.RFC3339))
}
