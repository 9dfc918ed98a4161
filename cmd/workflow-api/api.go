// Package main provides the workflow engine API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/renocrm/workflow-engine/pkg/persistence"
	"github.com/renocrm/workflow-engine/pkg/web"
	"github.com/renocrm/workflow-engine/pkg/workflow"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *workflow.Engine
	scheduler   *workflow.ResumptionScheduler
	secret      []byte
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	engine *workflow.Engine,
	scheduler *workflow.ResumptionScheduler,
	secret []byte,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		engine:      engine,
		scheduler:   scheduler,
		secret:      secret,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.validate, a.persistence)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Workflow Engine API")
	})

	handlers.Register(app, a.secret)

	return app
}

// Run serves HTTP and polls for due WAIT steps until ctx is cancelled.
func (a *API) Run(ctx context.Context, port int) error {
	app := a.App()

	err := a.scheduler.Start(ctx)
	if err != nil {
		return err
	}

	defer a.scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "Listening", "port", port)

		return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := app.ShutdownWithContext(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}

		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
