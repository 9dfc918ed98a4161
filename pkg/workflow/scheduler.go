package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/robfig/cron/v3"
)

const (
	DefaultResumeInterval = 30 * time.Second
	resumeBatchSize       = 100
)

// ResumeDue resumes every instance whose WAIT step is due and returns how many chains were
// resumed. Each resumption is claimed under the instance lock, so concurrent pollers never
// resume the same wait twice.
func (e *Engine) ResumeDue(ctx context.Context) (int, error) {
	due, err := e.persistence.ResumptionRepository().Due(ctx, e.clock(), resumeBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due resumptions: %w", err)
	}

	resumed := 0

	for _, resumption := range due {
		ok, err := e.resume(ctx, resumption)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to resume workflow instance",
				"instance_id", resumption.InstanceID,
				"resumption_id", resumption.ID,
				"error", err)

			continue
		}

		if ok {
			resumed++
		}
	}

	return resumed, nil
}

func (e *Engine) resume(ctx context.Context, resumption *models.ScheduledResumption) (bool, error) {
	resumed := false

	err := e.withInstanceLock(ctx, resumption.InstanceID, func() error {
		claimed, err := e.persistence.ResumptionRepository().Claim(ctx, resumption.ID, e.clock())
		if err != nil {
			return fmt.Errorf("failed to claim resumption: %w", err)
		}

		if !claimed {
			return nil
		}

		instance, err := e.persistence.InstanceRepository().GetByID(ctx, resumption.InstanceID)
		if err != nil {
			return err
		}

		if instance.Status.IsTerminal() || instance.CurrentStepID != resumption.StepID {
			e.logger.InfoContext(ctx, "Skipping stale resumption",
				"instance_id", instance.ID,
				"resumption_id", resumption.ID,
				"status", instance.Status)

			return nil
		}

		resumed = true

		e.logger.InfoContext(ctx, "Resuming workflow instance after wait",
			"instance_id", instance.ID,
			"step_id", resumption.StepID)

		return e.resumeAfter(ctx, instance, resumption.StepID)
	})

	return resumed, err
}

// ResumptionScheduler polls for due WAIT steps on a fixed interval.
type ResumptionScheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewResumptionScheduler(engine *Engine, logger *slog.Logger, interval time.Duration) *ResumptionScheduler {
	if interval <= 0 {
		interval = DefaultResumeInterval
	}

	return &ResumptionScheduler{
		engine:   engine,
		interval: interval,
		logger:   logger.With("module", "resumption_scheduler"),
	}
}

func (s *ResumptionScheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.poll(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resumption poller: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Resumption scheduler started", "interval", s.interval)

	return nil
}

func (s *ResumptionScheduler) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	resumed, err := s.engine.ResumeDue(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Resumption poll failed", "error", err)

		return
	}

	if resumed > 0 {
		s.logger.InfoContext(ctx, "Resumed workflow instances", "count", resumed)
	}
}

// Stop waits for a running poll to finish.
func (s *ResumptionScheduler) Stop() {
	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Resumption scheduler stopped")
}
