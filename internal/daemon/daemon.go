package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"slidecast/internal/config"
	"slidecast/internal/logging"
	"slidecast/internal/queue"
	"slidecast/internal/render"
)

// Daemon coordinates the orchestrator and API server and enforces
// single-instance execution through a file lock.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *queue.Store
	orchestrator *render.Orchestrator
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// DependencyStatus reports the availability of one external tool.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                `json:"running"`
	QueueDBPath  string              `json:"queue_db_path"`
	LockFilePath string              `json:"lock_file_path"`
	Jobs         queue.HealthSummary `json:"jobs"`
	Dependencies []DependencyStatus  `json:"dependencies"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, orchestrator *render.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || orchestrator == nil {
		return nil, errors.New("daemon requires config, store and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.LogDir, "slidecastd.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.WithComponent(logger, "daemon"),
		store:        store,
		orchestrator: orchestrator,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, d.logger)
	return d, nil
}

// Start acquires the daemon lock, launches the orchestrator workers and
// brings up the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another slidecast daemon instance is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.orchestrator.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if d.api != nil {
		if err := d.api.start(ctx); err != nil {
			d.orchestrator.Stop()
			_ = d.lock.Unlock()
			cancel()
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.orchestrator.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listener address, or empty before Start.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status collects runtime information including external tool probes.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.store.Counts(ctx)
	if err != nil {
		d.logger.Warn("failed to count jobs", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Jobs:         summary,
		Dependencies: d.probeDependencies(),
	}
}

func (d *Daemon) probeDependencies() []DependencyStatus {
	probes := []struct {
		name    string
		command string
	}{
		{"ffmpeg", firstNonEmpty(d.cfg.Render.FFmpegBinary, "ffmpeg")},
		{"ffprobe", firstNonEmpty(d.cfg.Render.FFprobeBinary, "ffprobe")},
	}
	statuses := make([]DependencyStatus, 0, len(probes))
	for _, probe := range probes {
		status := DependencyStatus{Name: probe.name, Command: probe.command}
		if path, err := exec.LookPath(probe.command); err == nil {
			status.Available = true
			status.Detail = path
		} else {
			status.Detail = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
