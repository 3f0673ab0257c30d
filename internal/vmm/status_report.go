package vmm

import (
	"time"

	"vattn/pkg/types"
)

// Manager states reported by Status.
const (
	StateUninitialized = "uninitialized"
	StateReady         = "ready"
	StateClosed        = "closed"
)

// Status builds the status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		Device:        m.device,
		PageSize:      m.pageSize,
		Granularity:   m.granularity,
		PoolPages:     len(m.pool),
		PoolBytes:     uint64(len(m.pool)) * m.pageSize,
		Mappings:      m.table.Len(),
		UptimeSeconds: int64(time.Since(m.startTime) / time.Second),
	}
	if m.backend != nil {
		resp.Backend = m.backend.Name()
	}
	switch {
	case m.closed:
		resp.State = StateClosed
	case m.initialized:
		resp.State = StateReady
	default:
		resp.State = StateUninitialized
	}
	return resp
}

// Mappings returns every live mapping ordered by request, layer and offset.
func (m *Manager) Mappings() []types.Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Mapping, 0, m.table.Len())
	m.table.Ascend(func(k MappingKey, v MappingValue) bool {
		out = append(out, types.Mapping{
			RequestID: k.RequestID,
			Layer:     k.Layer,
			Offset:    k.Offset,
			KPage:     uint64(v.KPage),
			VPage:     uint64(v.VPage),
		})
		return true
	})
	return out
}
