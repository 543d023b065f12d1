package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/iotmon/internal/device"
	"github.com/nerrad567/iotmon/internal/infrastructure/config"
	"github.com/nerrad567/iotmon/internal/notify"
	"github.com/nerrad567/iotmon/internal/probe"
)

// purgeDateLayout is the local calendar date format of the sweep marker.
const purgeDateLayout = "2006-01-02"

// reconcile rebuilds the registry when the configuration file's
// modification time differs from the one stored with the registry or from
// the one the configuration in force was loaded at, or unconditionally when
// force is set.
//
// A changed file is loaded and its channels built first; the registry is
// rebuilt next and the new configuration installed only once that commits,
// so configuration and registry switch together. A file that fails to load
// or validate is logged and the current configuration stays in force; the
// stored time is left alone so the next cycle tries again.
func (m *Monitor) reconcile(ctx context.Context, log Logger, force bool) (bool, error) {
	modTime, err := config.ModTime(m.configPath)
	if err != nil {
		log.Warn("cannot stat configuration file, keeping current configuration",
			"path", m.configPath,
			"error", err,
		)
		return false, nil
	}

	stored, ok, err := m.devices.ConfigModTime(ctx)
	if err != nil {
		return false, fmt.Errorf("reading stored config version: %w", err)
	}
	loaded := m.loadedModTime().Equal(modTime)
	if ok && stored.Equal(modTime) && loaded && !force {
		return false, nil
	}

	cfg := m.Config()
	var (
		prober     probe.Prober
		dispatcher *notify.Dispatcher
	)
	if !loaded {
		cfg, err = config.Load(m.configPath)
		if err == nil {
			prober, dispatcher, err = m.prepare(cfg)
		}
		if err != nil {
			log.Error("configuration reload failed, keeping previous configuration",
				"path", m.configPath,
				"error", err,
			)
			return false, nil
		}
	}

	now := m.now()
	devices := make([]device.Device, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, device.NewDevice(d.Address, d.Description, cfg.SuppressCountFor(d), now))
	}

	if err := m.devices.ReplaceAll(ctx, devices, modTime); err != nil {
		return false, fmt.Errorf("rebuilding device registry: %w", err)
	}

	if !loaded {
		m.install(cfg, modTime, prober, dispatcher)
		log.Info("configuration reloaded", "path", m.configPath, "devices", len(cfg.Devices))
	}
	log.Info("device registry rebuilt",
		"devices", len(devices),
		"config_mod_time", modTime.Format(time.RFC3339),
	)
	return true, nil
}

// sweep deletes transitions older than the retention horizon, at most once
// per local calendar day. The day is recorded even if the purge failed so a
// broken purge does not run every cycle.
func (m *Monitor) sweep(ctx context.Context, log Logger) int64 {
	cfg := m.Config()
	if cfg.Monitor.PurgeAfterDays <= 0 {
		return 0
	}

	now := m.now()
	today := now.Local().Format(purgeDateLayout)

	last, ok, err := m.devices.LastPurgeDate(ctx)
	if err != nil {
		log.Error("reading last purge date failed", "error", err)
		return 0
	}
	if ok && last == today {
		return 0
	}

	cutoff := now.Add(-cfg.GetPurgeHorizon())
	purged, err := m.transitions.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Error("retention sweep failed", "cutoff", cutoff.UTC().Format(time.RFC3339), "error", err)
	} else {
		log.Info("retention sweep complete",
			"purged", purged,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}

	if err := m.devices.SetLastPurgeDate(ctx, today); err != nil {
		log.Error("recording purge date failed", "error", err)
	}
	return purged
}
