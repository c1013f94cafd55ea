// Command feedcheck checks the telemetry feeds or follows a running monitor.
//
//	feedcheck -config configs/monitor.yaml            one live cycle, printed
//	feedcheck -watch http://localhost:8081            stream ticks from a monitor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/alert"
	"github.com/afroash/worker-monitor/internal/config"
	"github.com/afroash/worker-monitor/internal/feed"
	"github.com/afroash/worker-monitor/internal/logging"
	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
	"github.com/afroash/worker-monitor/internal/watch"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	watchURL := flag.String("watch", "", "base URL of a running monitor to follow")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *watchURL != "" {
		err = follow(ctx, *watchURL, cfg, os.Stdout, logger)
	} else {
		err = checkFeeds(ctx, cfg, os.Stdout, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Feed check failed")
		os.Exit(1)
	}
}

// checkFeeds runs one cycle for the live worker and prints what the monitor would see
func checkFeeds(ctx context.Context, cfg *config.Config, out io.Writer, logger zerolog.Logger) error {
	motion := feed.NewMotionFeed(feed.NewClient("motion", cfg.Feeds.MotionURL, cfg.Feeds.Timeout, logger))
	health := feed.NewHealthFeed(feed.NewClient("health", cfg.Feeds.HealthURL, cfg.Feeds.Timeout, logger))

	subject := models.DefaultSubjects()[0]
	session, err := monitor.NewSession([]monitor.Binding{
		{Subject: subject, Source: feed.NewLiveSource(motion, health)},
	}, monitor.SessionOptions{Retention: cfg.Poll.Retention, EvictOnAppend: cfg.Poll.Evicts()})
	if err != nil {
		return err
	}

	evaluator := alert.NewEvaluator(alert.Thresholds{
		GasLevel:    cfg.Alerts.GasThreshold,
		FallKeyword: cfg.Alerts.FallKeyword,
	})
	result, err := monitor.NewOrchestrator(session, evaluator, logger).Tick(ctx, subject.ID)
	if err != nil {
		return err
	}
	printResult(out, result)
	return nil
}

func printResult(out io.Writer, result monitor.TickResult) {
	fmt.Fprintln(out, result.Reading)
	if len(result.Alerts) == 0 {
		fmt.Fprintln(out, "No alerts")
		return
	}
	for _, a := range result.Alerts {
		fmt.Fprintf(out, "ALERT [%s] %s\n", a.Severity, a.Message)
	}
}

// follow prints the monitor's tick stream until ctx is cancelled
func follow(ctx context.Context, baseURL string, cfg *config.Config, out io.Writer, logger zerolog.Logger) error {
	conn := watch.NewConnection(watch.ConnectionConfig{
		BaseURL:  baseURL,
		Username: cfg.Session.Username,
		Password: cfg.Session.Password,
	}, func(msg *models.Message) { printMessage(out, msg) }, logger)
	defer conn.Close()

	return conn.Run(ctx)
}

func printMessage(out io.Writer, msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeTick:
		var tick models.TickMessage
		if err := msg.UnmarshalPayload(&tick); err != nil {
			return
		}
		fmt.Fprintf(out, "%s window=%d\n", tick.Reading, tick.WindowSize)
		for _, a := range tick.Alerts {
			fmt.Fprintf(out, "ALERT [%s] %s: %s\n", a.Severity, tick.SubjectID, a.Message)
		}
	case models.MessageTypeFetchFailure:
		var failure models.FetchFailureMessage
		if err := msg.UnmarshalPayload(&failure); err != nil {
			return
		}
		fmt.Fprintf(out, "%s: Error fetching data: %s (failures=%d stale=%t)\n",
			failure.SubjectID, failure.Error, failure.ConsecutiveFailures, failure.Stale)
	}
}
