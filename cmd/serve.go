package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/sentinel/internal/api"
	"grimm.is/sentinel/internal/audit"
	"grimm.is/sentinel/internal/brand"
	"grimm.is/sentinel/internal/config"
	"grimm.is/sentinel/internal/engine"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/logging"
	"grimm.is/sentinel/internal/metrics"
)

// ServeOptions configures RunServe.
type ServeOptions struct {
	ConfigFile string
	// Listen overrides api.listen when set.
	Listen string
	// Ready, when set, receives the bound address once the server accepts
	// connections.
	Ready func(addr string)
}

// LoadConfig loads path, or returns defaults when path is the default
// location and does not exist.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == brand.GetConfigPath() {
			logging.Warn("config file not found, using defaults", "path", path)
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the process logger from the logging block.
func NewLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:  level,
		Output: os.Stderr,
		JSON:   cfg.Logging.JSON,
	}), nil
}

// RunServe runs the decision engine and its API until ctx is cancelled.
func RunServe(ctx context.Context, opts ServeOptions) error {
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Listen != "" {
		cfg.API.Listen = opts.Listen
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	auditStore, err := audit.NewMemoryStore(nil, *cfg.Audit.MaxEntries)
	if err != nil {
		return fmt.Errorf("audit store: %w", err)
	}

	eng, err := engine.New(engine.Options{
		DefaultAction: firewall.Action(cfg.DefaultAction),
		MaxLogEntries: *cfg.AccessLog.MaxEntries,
		Threat:        cfg.Threat(),
		Logger:        logger,
		Audit:         auditStore,
	})
	if err != nil {
		auditStore.Close()
		return err
	}
	defer eng.Close()

	drafts := make([]firewall.RuleDraft, len(cfg.Rules))
	for i, r := range cfg.Rules {
		drafts[i] = r.Draft()
	}
	if err := eng.Seed(ctx, drafts); err != nil {
		return err
	}

	srv, err := api.NewServer(api.Options{Engine: eng, Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := srv.Listen(cfg.API.Listen)
	if err != nil {
		return err
	}

	logger.Info("sentinel starting",
		"version", brand.Version,
		"listen", ln.Addr().String(),
		"default_action", cfg.DefaultAction,
		"rules", len(drafts),
		"log_retention", *cfg.AccessLog.MaxEntries,
	)
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		return eng.RunSweeper(gctx, cfg.SweepInterval())
	})
	g.Go(func() error {
		return srv.Limiter().Run(gctx, time.Minute, 10*time.Minute)
	})
	if cfg.MetricsEnabled() {
		collector := metrics.NewCollector(eng.Metrics(), eng, logger, cfg.MetricsInterval())
		g.Go(func() error {
			return collector.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sentinel stopped")
	return nil
}
