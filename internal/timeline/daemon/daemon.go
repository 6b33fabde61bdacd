// Package daemon runs the long-lived timeline engine for one database.
//
// The daemon:
//  1. Opens the SQLite backend and wires store, event bus and sync manager
//  2. Watches the database for writes by other processes
//  3. Runs cleanup and change log pruning on a cron schedule
//  4. Optionally serves the live dashboard
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/timeline/internal/metrics"
	"github.com/clipforge/timeline/internal/timeline/dashboard"
	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/kv"
	"github.com/clipforge/timeline/internal/timeline/store"
	timelinesync "github.com/clipforge/timeline/internal/timeline/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DBPath is the SQLite database file
	DBPath string

	// PollInterval is how often the change log is read without a file event
	PollInterval time.Duration

	// CleanupSchedule is a cron spec for cleanup runs
	CleanupSchedule string

	// ChangeRetention is how long change log rows are kept
	ChangeRetention time.Duration

	// DashboardPort enables the dashboard when positive
	DashboardPort int

	// DashboardOrigins are the cross-origin host patterns the dashboard accepts
	DashboardOrigins []string

	// Store and Sync configure the components. Nil uses their defaults.
	Store *store.Config
	Sync  *timelinesync.Options

	// Registry receives the metrics. Nil uses a private registry.
	Registry *prometheus.Registry

	// Logger for daemon activity
	Logger *log.Logger

	// ComponentLogger names a logger per component. Nil reuses Logger.
	ComponentLogger func(component string) *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:          ".timeline/timeline.db",
		PollInterval:    2 * time.Second,
		CleanupSchedule: "@hourly",
		ChangeRetention: 24 * time.Hour,
		Logger:          log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon owns every long-lived component for one database.
type Daemon struct {
	config *Config
	logger *log.Logger

	db        *kv.SQLite
	bus       *events.Bus
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
	store     *store.Store
	manager   *timelinesync.Manager
	watcher   *kv.Watcher
	scheduler *cron.Cron
	dashboard *dashboard.Server
	handler   *dashboard.Handler

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New opens the database and builds the components. Nothing runs until
// Run is called; Stop releases the database either way.
func New(config *Config) (*Daemon, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DBPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = defaults.CleanupSchedule
	}
	if config.ChangeRetention <= 0 {
		config.ChangeRetention = defaults.ChangeRetention
	}
	component := config.ComponentLogger
	if component == nil {
		component = func(string) *log.Logger { return config.Logger }
	}

	schedule, err := cron.ParseStandard(config.CleanupSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
	}

	db, err := kv.OpenSQLite(config.DBPath)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:   config,
		logger:   config.Logger,
		db:       db,
		bus:      events.NewBus(component("events")),
		registry: config.Registry,
		done:     make(chan struct{}),
	}
	if d.registry == nil {
		d.registry = prometheus.NewRegistry()
	}
	d.metrics = metrics.New(d.registry)

	storeConfig := store.DefaultConfig()
	if config.Store != nil {
		cp := *config.Store
		storeConfig = &cp
	}
	storeConfig.Logger = component("store")
	storeConfig.Metrics = d.metrics
	if d.store, err = store.New(db, d.bus, storeConfig); err != nil {
		db.Close()
		return nil, err
	}

	if d.watcher, err = kv.NewWatcher(db, &kv.WatcherConfig{
		PollInterval: config.PollInterval,
		Logger:       component("kv-watch"),
	}); err != nil {
		db.Close()
		return nil, err
	}

	syncOpts := timelinesync.DefaultOptions()
	if config.Sync != nil {
		cp := *config.Sync
		syncOpts = &cp
	}
	syncOpts.Changes = d.watcher
	syncOpts.Logger = component("sync")
	syncOpts.Metrics = d.metrics
	if d.manager, err = timelinesync.New(d.store, d.bus, syncOpts); err != nil {
		d.watcher.Stop()
		db.Close()
		return nil, err
	}

	d.scheduler = cron.New(cron.WithLogger(cron.PrintfLogger(component("cron"))))
	d.scheduler.Schedule(schedule, cron.FuncJob(func() {
		d.RunCleanup(context.Background())
	}))

	if config.DashboardPort > 0 {
		d.dashboard = dashboard.NewServer(&dashboard.Config{
			Port:           config.DashboardPort,
			AllowedOrigins: config.DashboardOrigins,
			Gatherer:       d.registry,
			Status:         d.Status,
			Logger:         component("dashboard"),
		})
		d.handler = dashboard.NewHandler(d.dashboard, nil)
	}

	return d, nil
}

// Store returns the daemon's store.
func (d *Daemon) Store() *store.Store { return d.store }

// Bus returns the daemon's event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Manager returns the daemon's sync manager.
func (d *Daemon) Manager() *timelinesync.Manager { return d.manager }

// Dashboard returns the dashboard server, nil when disabled.
func (d *Daemon) Dashboard() *dashboard.Server { return d.dashboard }

// Run starts every component and blocks until ctx is cancelled or a
// component fails, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Printf("Starting daemon on %s", d.config.DBPath)

	if report, err := d.store.MigrateLegacy(ctx); err != nil {
		d.logger.Printf("Warning: legacy migration failed: %v", err)
	} else if len(report.Migrated) > 0 {
		d.logger.Printf("Migrated %d legacy documents", len(report.Migrated))
	}

	if err := d.watcher.Start(ctx); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	if err := d.manager.Start(ctx); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start sync manager: %w", err)
	}
	if d.dashboard != nil {
		if err := d.dashboard.Start(); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		d.handler.Attach(d.bus)
	}
	d.scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for err := range d.watcher.Errors() {
			d.logger.Printf("Watcher error: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			d.logger.Println("Shutdown signal received")
		case <-d.done:
		}
		return d.Stop()
	})

	return g.Wait()
}

// Stop shuts every component down and closes the database. It is safe to
// call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Println("Stopping daemon")
		close(d.done)

		<-d.scheduler.Stop().Done()

		if d.dashboard != nil {
			d.handler.Detach(d.bus)
			if err := d.dashboard.Stop(); err != nil {
				d.logger.Printf("Error stopping dashboard: %v", err)
			}
		}
		if err := d.manager.Close(); err != nil {
			d.logger.Printf("Error stopping sync manager: %v", err)
		}
		if err := d.watcher.Stop(); err != nil {
			d.logger.Printf("Error stopping watcher: %v", err)
		}
		d.stopErr = d.db.Close()

		d.logger.Println("Daemon stopped")
	})
	return d.stopErr
}

// RunCleanup evicts stale entries and prunes the change log.
func (d *Daemon) RunCleanup(ctx context.Context) *store.CleanupReport {
	report := d.store.Cleanup(ctx)
	for _, err := range report.Errors {
		d.logger.Printf("Warning: cleanup: %v", err)
	}

	cutoff := time.Now().Add(-d.config.ChangeRetention)
	pruned, err := d.db.PruneChanges(ctx, cutoff)
	if err != nil {
		d.logger.Printf("Warning: failed to prune change log: %v", err)
	}

	d.logger.Printf("Cleanup removed %d of %d entries, pruned %d change rows",
		report.Removed, report.Scanned, pruned)
	return report
}

// Status builds a snapshot for the dashboard and the status command.
func (d *Daemon) Status(ctx context.Context) (*dashboard.StatusData, error) {
	return Snapshot(ctx, d.store, d.manager)
}

// Snapshot summarizes a store and, when non-nil, a manager's queue.
func Snapshot(ctx context.Context, st *store.Store, manager *timelinesync.Manager) (*dashboard.StatusData, error) {
	scenes, err := st.ListScenes(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := st.Usage(ctx)
	if err != nil {
		return nil, err
	}
	status := &dashboard.StatusData{
		Scenes:       len(scenes),
		UsageBytes:   usage.Bytes,
		UsagePercent: usage.Percent,
	}
	if manager != nil {
		status.Pending = len(manager.Pending())
	}
	return status, nil
}
