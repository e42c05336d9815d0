// Package daemon ties the orchestrator, store, HTTP API, and session
// sweeper into a single lifecycle with flock-based locking to prevent
// multiple instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"subgen/internal/api"
	"subgen/internal/azure"
	"subgen/internal/config"
	"subgen/internal/logging"
	"subgen/internal/orchestrator"
	"subgen/internal/store"
	"subgen/internal/taxonomy"
)

const (
	// sessionRetention is how long terminal sessions stay queryable.
	sessionRetention = 24 * time.Hour
	sweepInterval    = time.Hour
)

// Daemon owns the long-running services of one subgen instance.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	orch   *orchestrator.Orchestrator
	api    *api.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New wires up a daemon from configuration: store, Azure clients,
// orchestrator, and the HTTP server.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if !cfg.Azure.Configured() {
		return nil, taxonomy.Wrap(taxonomy.ErrConfiguration, "daemon", "new",
			"azure speech key, region, and storage connection string are required", nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	speech := azure.NewSpeechClient(cfg.Azure.SpeechKey, cfg.Azure.SpeechRegion, logger)
	blob, err := azure.NewBlobClient(cfg.Azure.StorageConnectionString, cfg.Azure.StorageContainer, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("storage client: %w", err)
	}

	orch, err := orchestrator.New(cfg, st, speech, blob, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "subgend.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    st,
		orch:     orch,
		api:      api.NewServer(cfg, orch, logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, fails over jobs orphaned by a
// previous run, and brings up the API server and session sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subgen daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	failed, err := d.store.FailInFlight(runCtx, "Daemon restarted while job was in flight")
	if err != nil {
		d.logger.Warn("fail orphaned jobs", logging.Error(err))
	} else if failed > 0 {
		d.logger.Info("failed orphaned jobs from previous run", logging.Int64("jobs", failed))
	}

	if err := d.api.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go d.sweepSessions(runCtx)

	d.running.Store(true)
	d.logger.Info("subgen daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String("database", d.store.Path()))
	return nil
}

// sweepSessions periodically deletes terminal sessions past retention.
func (d *Daemon) sweepSessions(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-sessionRetention)
			removed, err := d.store.DeleteTerminalSessionsBefore(ctx, cutoff)
			if err != nil {
				d.logger.Warn("session sweep failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				d.logger.Info("swept old sessions", logging.Int64("sessions", removed))
			}
		}
	}
}

// Stop shuts everything down and marks still-running jobs failed.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.orch.Close()
	d.wg.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	if failed, err := d.store.FailInFlight(stopCtx, store.DaemonStopReason); err != nil {
		d.logger.Warn("fail in-flight jobs on shutdown", logging.Error(err))
	} else if failed > 0 {
		d.logger.Info("failed in-flight jobs on shutdown", logging.Int64("jobs", failed))
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("subgen daemon stopped")
}

// Close stops the daemon and releases the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether Start has completed without a matching Stop.
func (d *Daemon) Running() bool { return d.running.Load() }

// Addr reports the HTTP listener address once started.
func (d *Daemon) Addr() string { return d.api.Addr() }

// Store exposes the backing store, mainly for tests.
func (d *Daemon) Store() *store.Store { return d.store }
