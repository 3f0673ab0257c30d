package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vattn/internal/config"
	"vattn/internal/device/sim"
	"vattn/internal/vmm"
)

// pinnedGranularity is what the simulated pinned device reports.
const pinnedGranularity = 2 << 20

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(opts *rootOptions) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		c, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if !cfg.LogJSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("svc", "vattnd").Logger()
}

// node is one initialized device: the manager, the backend it selected and
// the per-layer ranges reserved on that backend.
type node struct {
	cfg    config.Config
	log    zerolog.Logger
	mgr    *vmm.Manager
	dev    *sim.Device
	ranges *sim.Ranges
}

// startNode runs Init and Reserve on a simulated device. Errors from the
// paging core are returned unchanged so callers can test vmm.IsFatal.
func startNode(cfg config.Config, log zerolog.Logger) (*node, error) {
	pinned := sim.New(sim.Options{Kind: sim.KindPinned, Device: cfg.Device, Granularity: pinnedGranularity, Capacity: cfg.FreeMemory})
	uvm := sim.New(sim.Options{Kind: sim.KindUVM, Device: cfg.Device, Granularity: cfg.PageSize, Capacity: cfg.FreeMemory})
	mgr := vmm.NewWithConfig(vmm.Config{
		Device:             cfg.Device,
		PageSize:           cfg.PageSize,
		LargePageThreshold: cfg.LargePageThreshold,
		Backend:            pinned,
		LargePageBackend:   uvm,
		Logger:             &log,
	})
	if _, err := mgr.Init(); err != nil {
		return nil, err
	}
	dev, ok := mgr.Backend().(*sim.Device)
	if !ok {
		return nil, fmt.Errorf("unexpected backend %T", mgr.Backend())
	}
	ranges, err := sim.NewRanges(dev, cfg.NumLayers, cfg.VirtBuffSize)
	if err != nil {
		return nil, fmt.Errorf("reserve layer ranges: %w", err)
	}
	n := &node{cfg: cfg, log: log, mgr: mgr, dev: dev, ranges: ranges}
	if _, err := mgr.Reserve(cfg.NumLayers, cfg.FreeMemory); err != nil {
		n.finish(err)
		return nil, err
	}
	return n, nil
}

// finish runs shutdown unless err is fatal. A fatal error ends the process
// with the device state left as it was when the failure happened.
func (n *node) finish(err error) bool {
	if vmm.IsFatal(err) {
		n.log.Error().Err(err).Msg("fatal error, skipping cleanup")
		return false
	}
	n.shutdown()
	return true
}

// shutdown tears the manager down and reports what the device still holds.
func (n *node) shutdown() vmm.CleanupReport {
	rep := n.mgr.Cleanup(n.ranges)
	st := n.dev.Stats()
	n.log.Info().
		Int("unmapped", rep.Unmapped).
		Int("released", rep.PagesReleased).
		Int("warnings", rep.Warnings).
		Int("leaked_handles", st.Handles).
		Int("leaked_ranges", st.Ranges).
		Msg("shutdown complete")
	return rep
}
