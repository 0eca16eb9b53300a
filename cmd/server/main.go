package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"trailhead/internal/platform/config"
	"trailhead/internal/platform/httpserver"
	"trailhead/internal/platform/logger"
	"trailhead/internal/platform/metrics"
	"trailhead/internal/registry/factory"
	"trailhead/internal/registry/handler"
	"trailhead/internal/registry/reconcile"
	"trailhead/internal/registry/service"
	"trailhead/pkg/platform/middleware/metadata"
	"trailhead/pkg/platform/middleware/requesttime"
)

const (
	reconcilePartitions  = 1
	reconcileReplication = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Registry logic lives in internal/registry.
func main() {
	if err := run(); err != nil {
		slog.Error("trailhead exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log, logCloser, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	stores := factory.New(factory.FromConfig(cfg), factory.WithLogger(log), factory.WithMetrics(m))
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("closing stores", "error", err)
		}
	}()

	sel, err := stores.Selection()
	if err != nil {
		return err
	}
	store, err := stores.Store(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	media, err := stores.Media(ctx)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}

	var svc *service.Service
	rebuild := func(ctx context.Context) error {
		_, err := svc.RebuildDateIndex(ctx)
		return err
	}
	scheduler, runConsumer, err := newReconciler(ctx, cfg.Reconcile, rebuild, log, m)
	if err != nil {
		return err
	}

	opts := []service.Option{
		service.WithMedia(media),
		service.WithMetrics(m),
		service.WithLogger(log),
		service.WithTracerProvider(otel.GetTracerProvider()),
		service.WithMaxRetries(cfg.Registry.MaxRetries),
		service.WithMaxHuntDays(cfg.Registry.MaxHuntDays),
		service.WithFanOut(cfg.Registry.FanOut),
		service.WithEnvironment(cfg.Server.Environment),
	}
	if scheduler != nil {
		opts = append(opts, service.WithReconcileScheduler(scheduler))
	}
	svc = service.New(store, opts...)

	if _, _, err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap app document: %w", err)
	}
	log.Info("registry ready",
		"authoritative", sel.Authoritative,
		"mirror", sel.Mirror,
		"media", sel.Media,
		"reconcile", cfg.Reconcile.Mode,
	)

	r := chi.NewRouter()
	r.Use(metadata.RequestMetadata)
	r.Use(requesttime.Middleware)
	r.Use(metadata.AccessLog(log, m))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	hopts := []handler.Option{
		handler.WithAdminToken(cfg.Server.AdminToken),
		handler.WithMaxMediaBytes(cfg.Media.MaxBytes),
	}
	if scheduler != nil {
		hopts = append(hopts, handler.WithReconcileScheduler(scheduler))
	}
	handler.New(svc, log, hopts...).Register(r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, httpserver.New(cfg.Server, r), cfg.Server.ShutdownTimeout.Std(), log)
	})
	if runConsumer != nil {
		g.Go(func() error {
			return runConsumer(gctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newReconciler builds the scheduler for cfg.Mode. In kafka mode it also returns
// the consumer loop that performs the rebuilds.
func newReconciler(ctx context.Context, cfg config.Reconcile, rebuild reconcile.RebuildFunc, log *slog.Logger, m *metrics.Metrics) (reconcile.Scheduler, func(context.Context) error, error) {
	opts := []reconcile.Option{
		reconcile.WithLogger(log),
		reconcile.WithMetrics(m),
		reconcile.WithDebounce(cfg.Debounce.Std()),
	}
	switch cfg.Mode {
	case config.ReconcileNone:
		return nil, nil, nil
	case config.ReconcileInline:
		inline, err := reconcile.NewInline(rebuild, opts...)
		return inline, nil, err
	}

	producer, err := reconcile.NewProducerClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if err := reconcile.EnsureTopic(ctx, producer, cfg.Topic, reconcilePartitions, reconcileReplication); err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("ensure reconcile topic: %w", err)
	}
	consumerClient, err := reconcile.NewConsumerClient(cfg)
	if err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer, err := reconcile.NewConsumer(consumerClient, rebuild, opts...)
	if err != nil {
		producer.Close()
		consumerClient.Close()
		return nil, nil, err
	}
	runConsumer := func(ctx context.Context) error {
		defer producer.Close()
		defer consumerClient.Close()
		return consumer.Run(ctx)
	}
	return reconcile.NewKafkaScheduler(producer, cfg.Topic, opts...), runConsumer, nil
}
