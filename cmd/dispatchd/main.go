// Package main provides the dispatchd application entry point. A
// single binary runs either daemon depending on the flags it is given:
// --prioritizer scores and routes intake messages into priority tiers,
// --spawner drains those tiers and supervises the work each message
// describes.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/broker/inmemory"
	brokerkafka "github.com/BlestxVentures/Work-Spawner-3000/internal/broker/kafka"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/config"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/observability"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/prioritizer"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/spawner"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/topictable"
	"github.com/BlestxVentures/Work-Spawner-3000/internal/workmodule"
)

func main() {
	runSpawner := flag.Bool("spawner", false, "run the work spawner daemon")
	runPrioritizer := flag.Bool("prioritizer", false, "run the work prioritizer daemon")
	testMode := flag.Bool("test", false, "use the in-memory broker instead of kafka+redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	if *testMode {
		cfg.TestMode = true
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			slog.Error("metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	tt, err := topictable.Load(cfg.TopicTablePath, cfg.IntakeTopicName, cfg.DeadLetterTopicName)
	if err != nil {
		slog.Error("failed to load topic table", slog.Any("error", err))
		os.Exit(1)
	}

	broker, closeBroker, err := buildBroker(cfg, logger)
	if err != nil {
		slog.Error("failed to build broker", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeBroker()

	wm := workmodule.Default{Logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case *runSpawner:
		slog.Info("starting dispatchd spawner", slog.String("env", cfg.AppEnv))
		s := &spawner.Spawner{
			Broker:       broker,
			WorkModule:   wm,
			Tiers:        tt.Tiers(),
			ChildTimeout: cfg.WaitTimeout(),
			Logger:       logger,
		}
		go s.Run(ctx)
	case *runPrioritizer:
		slog.Info("starting dispatchd prioritizer", slog.String("env", cfg.AppEnv))
		p := &prioritizer.Prioritizer{
			Broker:      broker,
			WorkModule:  wm,
			Resolver:    tt,
			IntakeTopic: tt.IntakeTopic(),
			Logger:      logger,
		}
		go p.Run(ctx)
	default:
		slog.Error("need to specify --spawner or --prioritizer")
		os.Exit(1)
	}

	slog.Info("dispatchd started successfully, waiting for shutdown signal")
	slog.Info("send signal TERM or INT to terminate the process")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
	cancel()

	time.Sleep(cfg.ShutdownGracePeriod)
	slog.Info("dispatchd stopped")
}

// buildBroker selects the in-memory backend for --test mode and the
// kafka+redis backend otherwise, returning a close func valid in
// either case.
func buildBroker(cfg config.Config, logger *slog.Logger) (domain.Broker, func(), error) {
	if cfg.TestMode {
		slog.Info("using in-memory broker (test mode)")
		b := inmemory.New(cfg.DeadLetterTopicName, cfg.LeaseDuration())
		return b, func() {}, nil
	}

	slog.Info("using kafka broker", slog.Any("brokers", cfg.KafkaBrokers))
	b, err := brokerkafka.New(brokerkafka.Config{
		Brokers:         cfg.KafkaBrokers,
		RedisAddr:       cfg.RedisAddr,
		DeadLetterTopic: cfg.DeadLetterTopicName,
		LeaseDuration:   cfg.LeaseDuration(),
		Logger:          logger,
	})
	if err != nil {
		return nil, func() {}, err
	}
	return b, func() { _ = b.Close() }, nil
}
