package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragmetrics/core"
	"ragmetrics/db"
	"ragmetrics/logging"
	"ragmetrics/metrics"
	"ragmetrics/shutdown"
	"ragmetrics/webui"
	"ragmetrics/webui/auth"
)

// archiveStopTimeout bounds how long queued snapshots may take to flush.
const archiveStopTimeout = 10 * time.Second

// relay owns every long-running component of the metrics server.
type relay struct {
	cfg       *core.Config
	logger    *logging.Logger
	store     *metrics.Store
	collector *metrics.SystemCollector
	archive   *db.Archive
	identity  *auth.IdentityMiddleware
	server    *webui.Server
}

// newRelay builds the components described by cfg. reader may be nil to
// sample the host with gopsutil.
func newRelay(cfg *core.Config, logger *logging.Logger, reader metrics.SystemReader, sm *shutdown.Manager) (*relay, error) {
	zl := logger.Zap()
	r := &relay{cfg: cfg, logger: logger}

	r.store = metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
	collectorConfig := metrics.DefaultSystemCollectorConfig()
	collectorConfig.CollectionInterval = cfg.SystemInterval
	if cfg.DiskPath != "" {
		collectorConfig.DiskPath = cfg.DiskPath
	}
	r.collector = metrics.NewSystemCollector(collectorConfig, reader, r.store.UpdateSystem)

	var archive webui.SnapshotArchive
	a, err := db.OpenArchive(db.ArchiveConfig{Path: cfg.DBPath}, zl.Named("archive"))
	switch {
	case errors.Is(err, db.ErrArchiveDisabled):
		logger.Info("snapshot archive disabled")
	case err != nil:
		return nil, fmt.Errorf("open archive: %w", err)
	default:
		r.archive = a
		archive = a
	}

	identity, err := auth.NewIdentityMiddleware(auth.Config{
		IdentityHeader:    cfg.IdentityHeader,
		AllowedIdentities: cfg.AllowedIdentities,
		TokenHash:         cfg.AccessTokenHash,
	}, zl.Named("auth"))
	if err != nil {
		r.closeArchive()
		return nil, fmt.Errorf("identity middleware: %w", err)
	}
	r.identity = identity

	broadcasterConfig := webui.DefaultBroadcasterConfig()
	broadcasterConfig.Interval = cfg.BroadcastInterval
	broadcasterConfig.PingInterval = cfg.PingInterval
	broadcaster := webui.NewSnapshotBroadcaster(broadcasterConfig, r.store, r.store, zl.Named("broadcaster"))

	apiConfig := webui.DefaultSnapshotAPIConfig()
	apiConfig.VersionInfo.Version = cfg.Version
	apiConfig.Recorder = r.store
	apiConfig.Collector = r.collector
	if sm != nil {
		apiConfig.ShuttingDown = sm.IsShuttingDown
	}
	api := webui.NewSnapshotAPI(r.store, archive, apiConfig, zl.Named("api"))

	serverConfig := webui.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port

	deps := webui.ServerDeps{
		Broadcaster:  broadcaster,
		API:          api,
		Prometheus:   metrics.NewExporter(r.store).Handler(),
		AuthProvider: identity,
	}
	if sm != nil {
		deps.Wrap = sm.Middleware
	}
	r.server, err = webui.NewServer(serverConfig, deps, zl.Named("server"))
	if err != nil {
		r.closeArchive()
		return nil, err
	}
	return r, nil
}

// register adds the relay's cleanup handlers to sm.
func (r *relay) register(sm *shutdown.Manager) {
	sm.Register("http-server", shutdown.PriorityHTTP, r.server.Shutdown)
	sm.Register("system-collector", shutdown.PriorityCollector, func(ctx context.Context) error {
		r.collector.Stop()
		return nil
	})
	if r.archive != nil {
		sm.Register("archive", shutdown.PriorityArchive, func(ctx context.Context) error {
			return r.archive.Close(archiveStopTimeout)
		})
	}
	sm.Register("logger", shutdown.PriorityLogger, shutdown.SyncLogger(r.logger))
}

// run serves until ctx is cancelled or a component fails.
func (r *relay) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	r.collector.Start(ctx)
	r.identity.RateLimiter().StartCleanupTicker(ctx, time.Minute)

	g.Go(func() error {
		return r.server.Start(ctx)
	})
	g.Go(func() error {
		// ListenAndServe only returns after Shutdown, so cancel it when the
		// group context ends.
		<-ctx.Done()
		return r.server.Shutdown(context.Background())
	})

	if r.archive != nil {
		g.Go(func() error {
			r.recordSnapshots(ctx)
			return nil
		})
		g.Go(func() error {
			return r.archive.RunRetention(ctx, db.RetentionConfig{Retention: r.cfg.Retention})
		})
	}

	r.logger.Info("metrics relay running",
		zap.String("addr", r.cfg.Addr()),
		zap.Bool("archive", r.archive != nil),
	)
	return g.Wait()
}

// recordSnapshots queues one snapshot per broadcast interval for the archive.
func (r *relay) recordSnapshots(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !r.archive.Enqueue(r.store.Snapshot(now)) {
				r.logger.Warn("archive queue full, snapshot dropped")
			}
		}
	}
}

func (r *relay) closeArchive() {
	if r.archive != nil {
		r.archive.Close(archiveStopTimeout)
	}
}
