// Package jobs runs the scheduled back-office tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/duplicates"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/messaging"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/robfig/cron/v3"
)

// Job names, as reported in metrics.
const (
	JobFollowUpReminders = "follow_up_reminders"
	JobDuplicateScan     = "duplicate_scan"
	JobDBStats           = "db_stats"
)

// Schedules are standard five-field cron expressions, evaluated in UTC.
type Schedules struct {
	FollowUpReminders string
	DuplicateScan     string
	DBStats           string
}

// DefaultSchedules returns reminders at 08:00, duplicate scans hourly and
// pool stats every minute.
func DefaultSchedules() Schedules {
	return Schedules{
		FollowUpReminders: "0 8 * * *",
		DuplicateScan:     "0 * * * *",
		DBStats:           "* * * * *",
	}
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron       *cron.Cron
	db         *database.Client
	reminders  *FollowUpReminder
	duplicates *duplicates.Service
	metrics    *metrics.Metrics
	slack      *slack.Service
	logger     logger.Logger

	lastDuplicates [3]int
}

// NewCronManager creates a new cron manager. m may be nil.
func NewCronManager(db *database.Client, messages *messaging.Service, dups *duplicates.Service, m *metrics.Metrics, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CronManager{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		db:         db,
		reminders:  NewFollowUpReminder(db, messages, log.With("job", JobFollowUpReminders)),
		duplicates: dups,
		metrics:    m,
		logger:     log,
	}
}

// SetSlack posts duplicate scan counts to Slack whenever they change.
func (cm *CronManager) SetSlack(s *slack.Service) {
	cm.slack = s
}

// SetupJobs registers every job. Empty schedules fall back to the defaults.
func (cm *CronManager) SetupJobs(s Schedules) error {
	def := DefaultSchedules()
	if s.FollowUpReminders == "" {
		s.FollowUpReminders = def.FollowUpReminders
	}
	if s.DuplicateScan == "" {
		s.DuplicateScan = def.DuplicateScan
	}
	if s.DBStats == "" {
		s.DBStats = def.DBStats
	}

	jobs := []struct {
		name     string
		schedule string
		timeout  time.Duration
		run      func(context.Context) error
	}{
		{JobFollowUpReminders, s.FollowUpReminders, 10 * time.Minute, cm.RunFollowUpReminders},
		{JobDuplicateScan, s.DuplicateScan, 15 * time.Minute, cm.RefreshDuplicateGauge},
		{JobDBStats, s.DBStats, 10 * time.Second, cm.RecordDBStats},
	}
	for _, j := range jobs {
		j := j
		_, err := cm.cron.AddFunc(j.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
			defer cancel()
			cm.run(ctx, j.name, j.run)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", j.schedule, j.name, err)
		}
		cm.logger.Info("scheduled job", "job", j.name, "schedule", j.schedule)
	}
	return nil
}

func (cm *CronManager) run(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	err := fn(ctx)
	if cm.metrics != nil {
		cm.metrics.RecordJobRun(name, err)
	}
	if err != nil {
		cm.logger.Error("job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	cm.logger.Debug("job completed", "job", name, "duration", time.Since(start))
}

// RunFollowUpReminders sends today's follow-up reminders.
func (cm *CronManager) RunFollowUpReminders(ctx context.Context) error {
	n, err := cm.reminders.Run(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		cm.logger.Info("follow-up reminders sent", "leads", n)
	}
	return nil
}

// RefreshDuplicateGauge rescans for duplicates and publishes the group counts.
func (cm *CronManager) RefreshDuplicateGauge(ctx context.Context) error {
	report := cm.duplicates.Scan(ctx)
	if report.Degraded {
		return fmt.Errorf("duplicate scan degraded")
	}
	counts := [3]int{len(report.EmailGroups), len(report.PhoneGroups), len(report.NamePairs)}
	if cm.metrics != nil {
		cm.metrics.SetDuplicateGroups(counts[0], counts[1], counts[2])
	}
	if counts == cm.lastDuplicates {
		return nil
	}
	cm.lastDuplicates = counts
	if cm.slack.IsEnabled() && counts != [3]int{} {
		if err := cm.slack.NotifyDuplicates(ctx, counts[0], counts[1], counts[2]); err != nil {
			cm.logger.Warn("slack duplicate notification failed", "error", err)
		}
	}
	return nil
}

// RecordDBStats publishes the number of open database connections.
func (cm *CronManager) RecordDBStats(ctx context.Context) error {
	if err := cm.db.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if cm.metrics != nil {
		cm.metrics.UpdateDBConnections(cm.db.Stats().OpenConnections)
	}
	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and returns a context that is done once running
// jobs have finished.
func (cm *CronManager) Stop() context.Context {
	cm.logger.Info("stopping cron scheduler")
	return cm.cron.Stop()
}
