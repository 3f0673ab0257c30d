package vmm

// Backend is the physical paging capability of one device. Implementations
// wrap a driver; every method maps to a single driver call.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// CurrentContext reports whether the calling process already holds a
	// device execution context.
	CurrentContext() (bool, error)
	// Granularity returns the minimum allocation granularity for prop.
	Granularity(prop AllocationProperties) (uint64, error)
	// Create allocates one physical page of exactly size bytes.
	Create(size uint64, prop AllocationProperties) (PageHandle, error)
	// Map binds h at [va, va+size).
	Map(va DevicePtr, size uint64, h PageHandle) error
	// Unmap removes whatever is bound at [va, va+size).
	Unmap(va DevicePtr, size uint64) error
	// SetAccess applies desc to [va, va+size).
	SetAccess(va DevicePtr, size uint64, desc AccessDescriptor) error
	// AddressFree returns a reserved virtual range to the device.
	AddressFree(va DevicePtr, size uint64) error
	// Release destroys a physical page.
	Release(h PageHandle) error
}

// usesLargePages reports whether pageSize selects the large-page backend.
func usesLargePages(pageSize, threshold uint64) bool {
	return pageSize >= threshold
}

// selectBackend picks the backend for pageSize. It returns nil when the
// large-page backend is required but not configured.
func selectBackend(pageSize, threshold uint64, def, large Backend) Backend {
	if usesLargePages(pageSize, threshold) {
		return large
	}
	return def
}
