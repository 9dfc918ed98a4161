package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renocrm/workflow-engine/pkg/cmd"
	"github.com/renocrm/workflow-engine/pkg/dispatcher"
	"github.com/renocrm/workflow-engine/pkg/log"
	"github.com/renocrm/workflow-engine/pkg/otelhelper"
	"github.com/renocrm/workflow-engine/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "workflow-api",
		Usage:                 "Serve the CRM workflow engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or file://path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for instance locks shared by all replicas; empty keeps locks in process",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "HMAC secret used to verify bearer tokens",
				Required: true,
				Sources:  cli.EnvVars("JWT_SECRET"),
			},
			&cli.DurationFlag{
				Name:    "resume-interval",
				Usage:   "How often due WAIT steps are resumed",
				Value:   workflow.DefaultResumeInterval,
				Sources: cli.EnvVars("RESUME_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "inline-dispatcher",
				Usage:   "Deliver webhooks and notifications from this process",
				Sources: cli.EnvVars("INLINE_DISPATCHER"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing workflow engine API")

	databaseURL := command.String("database-url")

	persistence, err := cmd.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "workflow-api", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	locker, closeLocker, err := cmd.NewLocker(ctx, logger, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		_ = closeLocker()
	}()

	opts := []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithLocker(locker),
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "workflow-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := shutdown(shutdownCtx)
			if err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		opts = append(opts, workflow.WithTracer(tracer))
	}

	if command.Bool("inline-dispatcher") {
		d := dispatcher.New(logger, dispatcher.NewLogNotifier(logger), dispatcher.Config{})

		err = d.Register(eventBus)
		if err != nil {
			return err
		}

		err = eventBus.Subscribe(ctx)
		if err != nil {
			return err
		}
	}

	entities := cmd.NewEntityRegistry(persistence, databaseURL)
	engine := workflow.NewEngine(persistence, entities, eventBus, opts...)
	scheduler := workflow.NewResumptionScheduler(engine, logger, command.Duration("resume-interval"))

	api := NewAPI(logger, persistence, engine, scheduler, []byte(command.String("jwt-secret")))

	err = api.Run(ctx, command.Int("port"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Workflow engine API stopped")

	return nil
}
