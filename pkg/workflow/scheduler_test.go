package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/renocrm/workflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumptionScheduler_ResumesDueWaits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scheduler timing test in short mode")
	}

	f := newFixture(t)
	definition := f.createDefinition(t,
		step("cure", models.StepTypeWait, 0, map[string]any{"waitMinutes": 0}),
		step("inspect", models.StepTypeTask, 1, nil),
	)

	instance := f.start(t, definition.ID)
	require.Equal(t, models.InstanceStatusRunning, instance.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := NewResumptionScheduler(f.engine, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)
	require.NoError(t, scheduler.Start(ctx))

	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		details, err := f.engine.GetInstance(context.Background(), testAccount, instance.ID)

		return err == nil && details.Status == models.InstanceStatusCompleted
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewResumptionScheduler_DefaultInterval(t *testing.T) {
	f := newFixture(t)

	scheduler := NewResumptionScheduler(f.engine, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	assert.Equal(t, DefaultResumeInterval, scheduler.interval)

	scheduler.Stop()
}
