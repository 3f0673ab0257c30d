package vmm

import "github.com/rs/zerolog"

// CleanupReport summarizes a Cleanup run.
type CleanupReport struct {
	// Unmapped counts table entries whose K and V ranges were both unmapped.
	Unmapped int
	// Skipped counts entries whose layer had no live range to unmap.
	Skipped       int
	RangesFreed   int
	PagesReleased int
	// Warnings counts every failure logged during the run.
	Warnings int
}

// Cleanup unmaps every recorded page pair, clears the mapping table, frees the
// K and V ranges of every layer in ranges and releases every pooled page, in
// that order. Failures are logged as warnings and never stop a phase or skip
// a later one. The caller must ensure no Map call is in flight.
func (m *Manager) Cleanup(ranges AddressRanges) CleanupReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rep CleanupReport
	b := m.backend
	if b == nil {
		b = selectBackend(m.pageSize, m.threshold, m.def, m.large)
	}
	if b == nil {
		m.warn(&rep, "select", m.log.Warn(), "no backend available for cleanup")
		m.table.Clear()
		m.pool = nil
		m.finishCleanupLocked(rep)
		return rep
	}

	// Phase 1: unmap every recorded pair.
	m.table.Ascend(func(key MappingKey, val MappingValue) bool {
		if ranges == nil || key.Layer < 0 || key.Layer >= ranges.NumLayers() {
			rep.Skipped++
			m.log.Debug().Stringer("key", key).Msg("no range for mapping; skipping unmap")
			return true
		}
		kbase, vbase := ranges.KBase(key.Layer), ranges.VBase(key.Layer)
		if kbase == 0 || vbase == 0 {
			rep.Skipped++
			return true
		}
		kerr := b.Unmap(kbase+DevicePtr(key.Offset), m.pageSize)
		verr := b.Unmap(vbase+DevicePtr(key.Offset), m.pageSize)
		if kerr != nil || verr != nil {
			ev := m.log.Warn().Stringer("key", key)
			if kerr != nil {
				ev = ev.AnErr("k_err", kerr)
			}
			if verr != nil {
				ev = ev.AnErr("v_err", verr)
			}
			m.warn(&rep, "unmap", ev, "failed to unmap pages during cleanup")
			return true
		}
		rep.Unmapped++
		return true
	})

	// Phase 2: the table is cleared whatever the unmap outcomes were.
	m.table.Clear()
	mappingsGauge.WithLabelValues(m.label()).Set(0)

	// Phase 3: free the virtual ranges.
	if ranges != nil {
		size := ranges.RangeSize()
		for layer := 0; layer < ranges.NumLayers(); layer++ {
			if p := ranges.KBase(layer); p != 0 {
				if err := b.AddressFree(p, size); err != nil {
					m.warn(&rep, "address_free", m.log.Warn().Err(err).Int("layer", layer), "failed to free k virtual address space")
				} else {
					rep.RangesFreed++
				}
			}
			if p := ranges.VBase(layer); p != 0 {
				if err := b.AddressFree(p, size); err != nil {
					m.warn(&rep, "address_free", m.log.Warn().Err(err).Int("layer", layer), "failed to free v virtual address space")
				} else {
					rep.RangesFreed++
				}
			}
		}
	}

	// Phase 4: release physical pages.
	for i, h := range m.pool {
		if err := b.Release(h); err != nil {
			m.warn(&rep, "release", m.log.Warn().Err(err).Int("index", i).Uint64("page", uint64(h)), "failed to release page handle")
			continue
		}
		rep.PagesReleased++
	}
	m.pool = nil

	m.finishCleanupLocked(rep)
	return rep
}

func (m *Manager) warn(rep *CleanupReport, phase string, ev *zerolog.Event, msg string) {
	rep.Warnings++
	cleanupWarnings.WithLabelValues(m.label(), phase).Inc()
	ev.Str("phase", phase).Msg(msg)
	m.publisher.Publish(Event{Name: "cleanup_warning", Device: m.device, Fields: map[string]any{"phase": phase}})
}

func (m *Manager) finishCleanupLocked(rep CleanupReport) {
	m.closed = true
	poolPages.WithLabelValues(m.label()).Set(0)
	m.log.Info().
		Int("unmapped", rep.Unmapped).
		Int("ranges_freed", rep.RangesFreed).
		Int("pages_released", rep.PagesReleased).
		Int("warnings", rep.Warnings).
		Msg("cleanup done")
	m.publisher.Publish(Event{Name: "cleanup_done", Device: m.device, Fields: map[string]any{"warnings": rep.Warnings}})
}
