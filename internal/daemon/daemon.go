package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yaap/hardware-google-pixel/internal/api"
	"github.com/yaap/hardware-google-pixel/internal/app/session"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/health"
	"github.com/yaap/hardware-google-pixel/internal/infra/hints"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
	"github.com/yaap/hardware-google-pixel/internal/infra/resource"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

// profileSettingPrefix keys persisted tag to profile selections.
const profileSettingPrefix = "profile."

// shutdownTimeout bounds the HTTP drain on shutdown.
const shutdownTimeout = 10 * time.Second

// Daemon is the ADPF runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Version string
	BootID  string
	Log     logr.Logger

	DB       *sqlite.DB
	Hints    *hints.Manager
	Sink     domain.ResourceSink
	Sessions *session.Manager
	Health   *health.Checker
	Server   *api.Server
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, version string, log logr.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	storeDir := cfg.Store.Dir
	if storeDir == "" {
		storeDir = adpfdHome()
	}
	db, err := sqlite.Open(storeDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config:  cfg,
		Version: version,
		BootID:  uuid.NewString(),
		Log:     log,
		DB:      db,
	}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) init() error {
	cfg := d.Config
	now := time.Now()

	if err := d.DB.RecordBoot(sqlite.Boot{ID: d.BootID, Version: d.Version, StartedAt: now}); err != nil {
		return fmt.Errorf("record boot: %w", err)
	}
	if retention := parseDuration(cfg.Store.Retention, 0); retention > 0 {
		n, err := d.DB.PruneHistory(context.Background(), now.Add(-retention))
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		d.Log.V(logging.VERBOSE).Info("pruned session history", "rows", n, "retention", retention)
	}

	tagProfiles, err := d.tagProfiles()
	if err != nil {
		return err
	}
	hm, err := hints.New(hints.Config{
		Profiles:       cfg.Profiles,
		DefaultProfile: cfg.ADPF.DefaultProfile,
		TagProfiles:    tagProfiles,
		Hints:          cfg.Hints,
	}, d.Log)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	d.Hints = hm

	var gpu health.GpuNodes
	if cfg.ADPF.DryRun {
		d.Sink = resource.NewRecordingSink(domain.Frequency(cfg.ADPF.DryRunGpuFrequency))
	} else {
		sys := resource.NewSysSink(resource.SinkConfig{
			UclampEnabled:    cfg.ADPF.Uclamp,
			GpuCapacityNode:  cfg.ADPF.GpuCapacityNode,
			GpuFrequencyNode: cfg.ADPF.GpuFrequencyNode,
		}, d.Log)
		d.Sink = sys
		if sys.HasGpuNode() {
			gpu = sys
		}
	}

	d.Sessions, err = session.NewManager(session.Options{
		Sink:          d.Sink,
		Profiles:      hm,
		Hints:         hm,
		History:       d.DB,
		Logger:        d.Log,
		BoostHintName: cfg.ADPF.BoostHint,
	})
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	d.Health = health.NewChecker(health.Options{
		Store:      d.DB,
		Timeouts:   d.Sessions,
		Gpu:        gpu,
		Interval:   parseDuration(cfg.Health.Interval, health.DefaultInterval),
		MaxBacklog: parseDuration(cfg.Health.MaxBacklog, health.DefaultMaxBacklog),
		Logger:     d.Log,
	})

	d.Server = api.NewServer(api.Options{
		Sessions: d.Sessions,
		Profiles: persistentProfiles{Manager: hm, db: d.DB},
		History:  d.DB,
		Health:   d.Health,
		Version:  d.Version,
		BootID:   d.BootID,
		Metrics:  cfg.Telemetry.Prometheus,
		Logger:   d.Log,
	})
	return nil
}

// tagProfiles merges the configured tag mapping with selections persisted by
// earlier runs. Persisted names no longer configured are ignored.
func (d *Daemon) tagProfiles() (map[string]string, error) {
	saved, err := d.DB.SettingsWithPrefix(profileSettingPrefix)
	if err != nil {
		return nil, fmt.Errorf("load profile selections: %w", err)
	}
	known := make(map[string]bool, len(d.Config.Profiles))
	for _, p := range d.Config.Profiles {
		known[p.Name] = true
	}

	out := make(map[string]string, len(d.Config.ADPF.TagProfiles)+len(saved))
	for tag, name := range d.Config.ADPF.TagProfiles {
		out[tag] = name
	}
	for tag, name := range saved {
		if !known[name] {
			d.Log.Info("ignoring saved profile selection", "tag", tag, "profile", name)
			continue
		}
		out[tag] = name
	}
	return out, nil
}

// Serve listens on the configured address and blocks until ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", d.Config.API.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener runs the vote expiry worker, the health checker and the HTTP
// server on ln until ctx is cancelled or one of them fails.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Sessions.Run(ctx)
		return nil
	})
	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})
	g.Go(func() error {
		if err := httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	d.Log.Info("adpfd serving", "addr", ln.Addr().String(), "boot_id", d.BootID,
		"version", d.Version, "metrics", d.Config.Telemetry.Prometheus, "dry_run", d.Config.ADPF.DryRun)
	return g.Wait()
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() error {
	var errs error
	if d.Sessions != nil {
		errs = multierr.Append(errs, d.Sessions.Close())
	}
	if d.DB != nil {
		errs = multierr.Append(errs, d.DB.Close())
	}
	return errs
}

// persistentProfiles saves every profile switch so it survives a restart.
type persistentProfiles struct {
	*hints.Manager
	db *sqlite.DB
}

func (p persistentProfiles) SetProfile(tag domain.SessionTag, name string) error {
	if err := p.Manager.SetProfile(tag, name); err != nil {
		return err
	}
	return p.db.SetSetting(profileSettingPrefix+tag.String(), name)
}
