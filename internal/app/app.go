package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/wxdatadog/internal/archive"
	"github.com/chrissnell/wxdatadog/internal/database"
	"github.com/chrissnell/wxdatadog/internal/datadog"
	"github.com/chrissnell/wxdatadog/internal/forwarder"
	"github.com/chrissnell/wxdatadog/internal/health"
	"github.com/chrissnell/wxdatadog/internal/ingest"
	"github.com/chrissnell/wxdatadog/internal/mapping"
	"github.com/chrissnell/wxdatadog/internal/telemetry"
	"github.com/chrissnell/wxdatadog/pkg/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown. Configuration
// errors are returned before anything is started.
func (a *App) Run(ctx context.Context) error {
	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfgData.ValidateIngest(); err != nil {
		return err
	}

	fcfg, err := config.NewForwarderConfig(cfgData.Datadog)
	if err != nil {
		return err
	}

	table, err := BuildTable(cfgData.Datadog.ExtraMappings)
	if err != nil {
		return err
	}

	metrics := telemetry.New()
	hm := health.NewManager()

	client := datadog.NewClient(datadog.Options{
		APIHost:      fcfg.APIHost,
		APIKey:       fcfg.APIKey,
		AppKey:       fcfg.AppKey,
		Timeout:      fcfg.Timeout,
		MaxTries:     fcfg.MaxTries,
		RetryWait:    fcfg.RetryWait,
		MaxRetryWait: fcfg.MaxRetryWait,
	}, nil, a.logger)

	if fcfg.ValidateKeys && !fcfg.SkipUpload {
		a.validateKeys(ctx, client, hm)
	}

	opts := []forwarder.Option{
		forwarder.WithLogger(a.logger),
		forwarder.WithMetrics(metrics),
		forwarder.WithHealth(hm),
	}

	if cfgData.Archive.Database != "" {
		store, err := archive.Open(cfgData.Archive.Database, cfgData.Archive.Table, a.logger)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, forwarder.WithAugmenter(store))
	}

	fwd, err := forwarder.New(fcfg, table, client, opts...)
	if err != nil {
		return err
	}

	var dbClient *database.Client
	if c := cfgData.Ingest.TimescaleDB; c != nil {
		db, err := database.CreateConnection(c.ConnectionString, a.logger)
		if err != nil {
			return err
		}
		dbClient = database.NewClient(db, a.logger)
		defer dbClient.Close()
	}

	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	fwd.Start(gctx, &wg)

	if c := cfgData.Ingest.HTTP; c != nil {
		srv := ingest.NewHTTPServer(*c, fwd, hm, metrics.Handler(), a.logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if c := cfgData.Ingest.UDP; c != nil {
		udp := ingest.NewUDPListener(c.ListenAddr, fwd, a.logger)
		g.Go(func() error { return udp.Run(gctx) })
	}

	if c := cfgData.Ingest.TimescaleDB; c != nil {
		poller := ingest.NewPoller(dbClient, c.StationName, c.Interval.Std(), fwd, a.logger)
		g.Go(func() error { return poller.Run(gctx) })
	}

	if addr := cfgData.Health.GRPCListenAddr; addr != "" {
		g.Go(func() error { return health.ServeGRPC(gctx, addr, hm, a.logger) })
	}

	a.logger.Info("Application started successfully")

	g.Go(func() error {
		// Set up signal handling
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		select {
		case <-sigs:
			a.logger.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-gctx.Done():
			a.logger.Info("context cancelled, shutting down...")
		}
		return nil
	})

	err = g.Wait()
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return err
}

func (a *App) validateKeys(ctx context.Context, client *datadog.Client, hm *health.Manager) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.Validate(ctx); err != nil {
		// Not fatal: the keys may be fine once a proxy or network recovers.
		a.logger.Errorf("Datadog key validation failed: %v", err)
		hm.Report(forwarder.HealthComponent, "key validation failed", err)
		return
	}
	a.logger.Info("Datadog API key is valid")
	hm.Report(forwarder.HealthComponent, "key validated", nil)
}

// BuildTable returns the built-in mapping table with the configured extra
// mappings added or replacing built-in entries
func BuildTable(extra []config.MappingData) (*mapping.Table, error) {
	if len(extra) == 0 {
		return mapping.Default(), nil
	}

	mappings := make([]mapping.Mapping, 0, len(extra))
	for _, m := range extra {
		metric := m.Metric
		if metric == "" {
			metric = mapping.SnakeCase(m.Field)
		}
		mappings = append(mappings, mapping.Mapping{
			Field:  m.Field,
			Metric: metric,
			Group:  mapping.Group(m.Group),
		})
	}

	table, err := mapping.Default().With(mappings...)
	if err != nil {
		return nil, &config.ConfigurationError{Option: "datadog.extra_mappings", Reason: err.Error()}
	}
	return table, nil
}
