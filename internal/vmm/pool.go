package vmm

import "fmt"

// Reserve grows the physical page pool to the size returned by the Sizer for
// numLayers and freeMemory, creating one page at a time. The pool never
// shrinks; a target that is already met is a no-op. It returns the pool size.
//
// A page creation failure is fatal. Pages created before the failure stay in
// the pool and are released by Cleanup.
func (m *Manager) Reserve(numLayers int, freeMemory uint64) (int, error) {
	target := m.sizer(numLayers, freeMemory, m.pageSize)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return len(m.pool), fatal("reserve", ErrNotInitialized)
	}
	m.closed = false
	if len(m.pool) >= target {
		return len(m.pool), nil
	}
	m.log.Info().Int("pages", target).Uint64("page_size", m.pageSize).Msg("reserving pages")

	for len(m.pool) < target {
		h, err := m.backend.Create(m.pageSize, m.prop)
		if err != nil {
			poolPages.WithLabelValues(m.label()).Set(float64(len(m.pool)))
			return len(m.pool), fatal("reserve", fmt.Errorf("create page %d of %d: %w", len(m.pool)+1, target, err))
		}
		if !h.Valid() {
			poolPages.WithLabelValues(m.label()).Set(float64(len(m.pool)))
			return len(m.pool), fatal("reserve", fmt.Errorf("create page %d of %d: %w", len(m.pool)+1, target, ErrInvalidHandle))
		}
		m.pool = append(m.pool, h)
	}
	poolPages.WithLabelValues(m.label()).Set(float64(len(m.pool)))
	m.publisher.Publish(Event{Name: "reserve", Device: m.device, Fields: map[string]any{"pages": len(m.pool)}})
	return len(m.pool), nil
}

// PoolSize returns the number of physical pages held.
func (m *Manager) PoolSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pool)
}

// Pages returns a copy of the pool's page handles in creation order.
func (m *Manager) Pages() []PageHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PageHandle, len(m.pool))
	copy(out, m.pool)
	return out
}
