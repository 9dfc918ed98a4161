// Package main runs the side-effect dispatcher: it consumes workflow events and delivers
// webhooks and notifications.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/renocrm/workflow-engine/pkg/cmd"
	"github.com/renocrm/workflow-engine/pkg/dispatcher"
	"github.com/renocrm/workflow-engine/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:  "workflow-dispatcher",
		Usage: "Deliver workflow webhooks and notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Usage:   "Timeout of one webhook request",
				Value:   dispatcher.DefaultTimeout,
				Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
			},
			&cli.FloatFlag{
				Name:    "webhook-rate",
				Usage:   "Outbound webhook requests per second",
				Value:   dispatcher.DefaultRate,
				Sources: cli.EnvVars("WEBHOOK_RATE"),
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

	logger := log.WithModule("dispatcher")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), "workflow-dispatcher", logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	d := dispatcher.New(logger, dispatcher.NewLogNotifier(logger), dispatcher.Config{
		Timeout: command.Duration("webhook-timeout"),
		Rate:    command.Float("webhook-rate"),
	})

	err = d.Register(eventBus)
	if err != nil {
		return err
	}

	err = eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Dispatcher started", "event_bus", command.String("event-bus"))

	<-ctx.Done()

	logger.Info("Dispatcher stopped")

	return nil
}
