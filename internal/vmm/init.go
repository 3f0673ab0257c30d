package vmm

import "fmt"

// Init selects the paging backend for the configured page size, checks that a
// device context exists and validates the device allocation granularity. It
// returns the granularity, which always equals the page size on success.
// Calling Init again returns the negotiated granularity without device calls.
func (m *Manager) Init() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return m.granularity, nil
	}

	b := selectBackend(m.pageSize, m.threshold, m.def, m.large)
	if b == nil {
		if usesLargePages(m.pageSize, m.threshold) {
			return 0, fatal("init", fmt.Errorf("%w (page size %d, threshold %d)", ErrNoLargePageBackend, m.pageSize, m.threshold))
		}
		return 0, fatal("init", fmt.Errorf("no backend configured for device %d", m.device))
	}

	ok, err := b.CurrentContext()
	if err != nil {
		return 0, fatal("init", fmt.Errorf("query device context: %w", err))
	}
	if !ok {
		return 0, fatal("init", ErrNoContext)
	}

	prop := AllocationProperties{
		Type:     AllocationPinned,
		Location: Location{Type: LocationDevice, ID: m.device},
	}
	access := AccessDescriptor{
		Location: Location{Type: LocationDevice, ID: m.device},
		Flags:    AccessReadWrite,
	}

	gran, err := b.Granularity(prop)
	if err != nil {
		return 0, fatal("init", fmt.Errorf("query granularity: %w", err))
	}
	if gran != m.pageSize {
		return 0, fatal("init", fmt.Errorf("%w: expected %d, got %d", ErrGranularityMismatch, m.pageSize, gran))
	}

	m.backend = b
	m.prop = prop
	m.access = access
	m.granularity = gran
	m.initialized = true
	m.log.Info().Str("backend", b.Name()).Uint64("page_size", m.pageSize).Msg("vmm initialized")
	m.publisher.Publish(Event{Name: "init", Device: m.device, Fields: map[string]any{"backend": b.Name(), "granularity": gran}})
	return gran, nil
}
