package vmm

import "fmt"

// Map binds r.KPage at r.KBase+r.Offset and r.VPage at r.VBase+r.Offset, each
// spanning one page, enables read-write access on both and records the pair
// in the mapping table.
//
// The whole sequence runs under the manager lock, so Map is atomic with
// respect to every other Map call. A key that is already mapped returns nil
// without touching the device. Every returned error is fatal: a precondition
// violation is a caller bug and a half-mapped slot cannot be retried.
func (m *Manager) Map(r MapRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkMapLocked(r); err != nil {
		mapCalls.WithLabelValues(m.label(), "fatal").Inc()
		return err
	}

	key := r.Key()
	if m.table.Has(key) {
		mapCalls.WithLabelValues(m.label(), "skipped").Inc()
		return nil
	}

	kva := r.KBase + DevicePtr(r.Offset)
	vva := r.VBase + DevicePtr(r.Offset)
	if err := m.backend.Map(kva, m.pageSize, r.KPage); err != nil {
		return m.mapFailed(fmt.Errorf("map k page %d at %s: %w", r.KPage, kva, err))
	}
	if err := m.backend.Map(vva, m.pageSize, r.VPage); err != nil {
		return m.mapFailed(fmt.Errorf("map v page %d at %s: %w", r.VPage, vva, err))
	}
	if err := m.backend.SetAccess(kva, m.pageSize, m.access); err != nil {
		return m.mapFailed(fmt.Errorf("set access at %s: %w", kva, err))
	}
	if err := m.backend.SetAccess(vva, m.pageSize, m.access); err != nil {
		return m.mapFailed(fmt.Errorf("set access at %s: %w", vva, err))
	}

	m.table.Insert(key, MappingValue{KPage: r.KPage, VPage: r.VPage})
	mapCalls.WithLabelValues(m.label(), "mapped").Inc()
	mappingsGauge.WithLabelValues(m.label()).Set(float64(m.table.Len()))
	m.log.Debug().Stringer("key", key).Uint64("k_page", uint64(r.KPage)).Uint64("v_page", uint64(r.VPage)).Msg("mapped")
	m.publisher.Publish(Event{Name: "map", Device: m.device, Fields: map[string]any{"request_id": r.RequestID, "layer": r.Layer, "offset": r.Offset}})
	return nil
}

// checkMapLocked validates the caller contract of Map. m.mu must be held.
func (m *Manager) checkMapLocked(r MapRequest) error {
	if r.Offset%m.pageSize != 0 {
		return fatal("map", fmt.Errorf("%w: offset %d, page size %d", ErrMisaligned, r.Offset, m.pageSize))
	}
	if !r.KPage.Valid() || !r.VPage.Valid() {
		return fatal("map", fmt.Errorf("%w: k_page=%d v_page=%d", ErrInvalidHandle, r.KPage, r.VPage))
	}
	if r.KBase == 0 || r.VBase == 0 {
		return fatal("map", fmt.Errorf("%w: k_base=%s v_base=%s", ErrInvalidAddress, r.KBase, r.VBase))
	}
	if !m.initialized {
		return fatal("map", ErrNotInitialized)
	}
	if m.access.Location.Type != LocationDevice || m.access.Flags != AccessReadWrite {
		return fatal("map", ErrAccessDescriptor)
	}
	return nil
}

func (m *Manager) mapFailed(err error) error {
	mapCalls.WithLabelValues(m.label(), "fatal").Inc()
	m.log.Error().Err(err).Msg("map failed")
	return fatal("map", err)
}
