package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/leadflow/backend/internal/models"
)

const defaultRunTimeout = 30 * time.Minute

// Aggregator is the analytics job target.
type Aggregator interface {
	PreviousDay(now time.Time) time.Time
	Aggregate(ctx context.Context, day time.Time) ([]models.DailyAnalyticsSummary, error)
}

// CronManager schedules the daily analytics rollup.
type CronManager struct {
	cron       *cron.Cron
	aggregator Aggregator
	logger     zerolog.Logger
	now        func() time.Time
	timeout    time.Duration
}

func NewCronManager(aggregator Aggregator, loc *time.Location, logger zerolog.Logger) *CronManager {
	if loc == nil {
		loc = time.UTC
	}
	return &CronManager{
		cron:       cron.New(cron.WithLocation(loc)),
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
		timeout:    defaultRunTimeout,
	}
}

// SetupJobs registers the analytics job under schedule, a standard five field
// cron expression.
func (cm *CronManager) SetupJobs(schedule string) error {
	_, err := cm.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cm.timeout)
		defer cancel()
		if _, err := cm.RunOnce(ctx); err != nil {
			cm.logger.Error().Err(err).Msg("daily analytics job failed")
		}
	})
	if err != nil {
		return err
	}
	cm.logger.Info().Str("schedule", schedule).Msg("analytics job scheduled")
	return nil
}

// RunOnce aggregates the day before now. Reruns for the same day are safe.
func (cm *CronManager) RunOnce(ctx context.Context) ([]models.DailyAnalyticsSummary, error) {
	day := cm.aggregator.PreviousDay(cm.now())
	cm.logger.Info().Str("date", day.Format("2006-01-02")).Msg("running daily analytics job")
	return cm.aggregator.Aggregate(ctx, day)
}

func (cm *CronManager) Start() {
	cm.logger.Info().Msg("starting cron scheduler")
	cm.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish or ctx to end.
func (cm *CronManager) Stop(ctx context.Context) {
	cm.logger.Info().Msg("stopping cron scheduler")
	done := cm.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}
