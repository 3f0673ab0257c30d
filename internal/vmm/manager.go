package vmm

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the physical page pool and the mapping table of one device.
type Manager struct {
	// mu serializes Map calls and guards pool, table and state.
	mu sync.RWMutex

	device    int
	pageSize  uint64
	threshold uint64
	def       Backend
	large     Backend
	sizer     Sizer
	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time

	// Set once by Init.
	backend     Backend
	granularity uint64
	prop        AllocationProperties
	access      AccessDescriptor
	initialized bool
	closed      bool

	pool  []PageHandle
	table *Table
}

// New constructs a Manager for device with the given page size and backends.
func New(device int, pageSize uint64, backend, largePage Backend) *Manager {
	return NewWithConfig(Config{
		Device:           device,
		PageSize:         pageSize,
		Backend:          backend,
		LargePageBackend: largePage,
	})
}

// Device returns the device ordinal.
func (m *Manager) Device() int { return m.device }

// PageSize returns the configured page size in bytes.
func (m *Manager) PageSize() uint64 { return m.pageSize }

// Backend returns the backend chosen by Init, or nil before Init.
func (m *Manager) Backend() Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

// Ready reports whether the manager is initialized, holds pages and has not
// been cleaned up.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized && !m.closed && len(m.pool) > 0
}

// Len returns the number of live mappings.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Len()
}

// Lookup returns the page pair mapped at key, if any.
func (m *Manager) Lookup(key MappingKey) (MappingValue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.table.Get(key)
}
