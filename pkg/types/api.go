package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: not initialized
	Error string `json:"error" example:"not initialized"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
}

// Mapping describes one live page mapping: a K/V page pair bound at an offset
// inside the per-layer virtual ranges of a request.
type Mapping struct {
	// Request the pages belong to.
	// example: 7
	RequestID int `json:"request_id" example:"7"`
	// Transformer layer index.
	// example: 3
	Layer int `json:"layer" example:"3"`
	// Byte offset into the layer's virtual range. Always page aligned.
	// example: 4194304
	Offset uint64 `json:"offset" example:"4194304"`
	// Physical page handle backing the K range.
	KPage uint64 `json:"k_page"`
	// Physical page handle backing the V range.
	VPage uint64 `json:"v_page"`
}

// MappingsResponse wraps the list returned by GET /mappings.
type MappingsResponse struct {
	Mappings []Mapping `json:"mappings"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Device ordinal managed by this process.
	// example: 0
	Device int `json:"device" example:"0"`
	// Name of the paging backend selected at init (pinned or uvm).
	// example: pinned
	Backend string `json:"backend,omitempty" example:"pinned"`
	// Configured page size in bytes.
	// example: 2097152
	PageSize uint64 `json:"page_size" example:"2097152"`
	// Allocation granularity reported by the device.
	// example: 2097152
	Granularity uint64 `json:"granularity" example:"2097152"`
	// Physical pages currently held by the pool.
	// example: 1000
	PoolPages int `json:"pool_pages" example:"1000"`
	// Bytes held by the pool (pool_pages * page_size).
	PoolBytes uint64 `json:"pool_bytes"`
	// Live mapping table entries.
	// example: 64
	Mappings int `json:"mappings" example:"64"`
	// Overall state (uninitialized, ready, closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Uptime of the manager in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
}
