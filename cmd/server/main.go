package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/api"
	"github.com/visitorpulse/pulse/internal/config"
	"github.com/visitorpulse/pulse/internal/logging"
	"github.com/visitorpulse/pulse/internal/mock"
	"github.com/visitorpulse/pulse/internal/pipeline"
	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/storage"
	"github.com/visitorpulse/pulse/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	mockMode := flag.Bool("mock", false, "Generate synthetic visitor traffic")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", "pulse"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer func() { _ = store.Close() }()

	policy, err := alert.ParsePolicy(cfg.Alerts.Policy)
	if err != nil {
		logger.Error("Invalid alert policy", zap.Error(err))
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hubMetrics := ws.NewMetrics()
	pipeMetrics := pipeline.NewMetrics()
	if err := errors.Join(hubMetrics.Register(reg), pipeMetrics.Register(reg)); err != nil {
		logger.Error("Failed to register metrics", zap.Error(err))
		return 1
	}

	agg := session.NewAggregator(session.WithEventBuffer(cfg.Analytics.EventBuffer))
	engine := alert.NewEngine(alert.Thresholds{
		MilestoneEvery: cfg.Alerts.MilestoneEvery,
		HighActivity:   cfg.Alerts.HighActivity,
	}, policy)
	logger.Info("Alert engine ready", zap.String("policy", string(engine.Policy())),
		zap.Int("milestone_every", cfg.Alerts.MilestoneEvery), zap.Int("high_activity", cfg.Alerts.HighActivity))

	hub := ws.NewHub(agg, engine, ws.Options{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		SendBuffer:        cfg.Hub.SendBuffer,
		RecentEvents:      cfg.Hub.RecentEvents,
		SessionLimit:      cfg.Hub.SessionLimit,
		MaxConnections:    cfg.Hub.MaxConnections,
		Logger:            logger,
		Metrics:           hubMetrics,
	})
	pipe := pipeline.New(agg, store, hub, logger, pipeMetrics)

	router := api.NewRouter(api.Options{
		Processor:      pipe,
		Aggregator:     agg,
		Store:          store,
		Dashboards:     hub,
		WS:             ws.NewServer(hub, cfg.Server.AllowedOrigins, logger),
		Gatherer:       reg,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	go hub.Run(ctx)
	go pipe.RunSweeper(ctx, cfg.Analytics.SweepInterval, cfg.Analytics.InactivityTimeout)

	if *mockMode {
		logger.Info("Starting in mock mode")
		gen := mock.NewGenerator(pipe, mock.WithLogger(logger))
		go gen.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Pulse hub starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		logger.Info("Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
		return 1
	}

	logger.Info("Pulse hub exited cleanly")
	return 0
}

// openStore connects to PostgreSQL when a URL is configured and falls back
// to an in-memory-only Nop store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Database.URL == "" {
		logger.Info("No database configured, history endpoints will be empty")
		return storage.Nop{}, nil
	}

	db, err := storage.Open(ctx, cfg.Database.URL, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Database connected")
	return storage.NewPostgres(db), nil
}
