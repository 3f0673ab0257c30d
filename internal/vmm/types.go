package vmm

import "fmt"

// PageHandle references one physical device page of exactly the configured
// page size. Zero is the invalid handle.
type PageHandle uint64

// Valid reports whether h is not the zero sentinel.
func (h PageHandle) Valid() bool { return h != 0 }

// DevicePtr is a device virtual address. Zero is null.
type DevicePtr uint64

func (p DevicePtr) String() string { return fmt.Sprintf("%#x", uint64(p)) }

// AllocationType is the physical allocation kind requested from a backend.
type AllocationType int

const (
	AllocationInvalid AllocationType = iota
	AllocationPinned
)

// LocationType says where memory lives.
type LocationType int

const (
	LocationInvalid LocationType = iota
	LocationDevice
)

// AccessFlags controls the protection of a mapped range.
type AccessFlags int

const (
	AccessNone AccessFlags = iota
	AccessRead
	AccessReadWrite
)

// Location identifies a memory location.
type Location struct {
	Type LocationType
	ID   int
}

// AllocationProperties describes the physical pages a Manager creates.
type AllocationProperties struct {
	Type     AllocationType
	Location Location
}

// AccessDescriptor is applied to every mapped range.
type AccessDescriptor struct {
	Location Location
	Flags    AccessFlags
}

// MappingKey identifies one page slot: a page-aligned offset into the
// virtual ranges of one layer, on behalf of one request.
type MappingKey struct {
	RequestID int
	Offset    uint64
	Layer     int
}

// Less orders keys by request, then layer, then offset.
func (k MappingKey) Less(o MappingKey) bool {
	if k.RequestID != o.RequestID {
		return k.RequestID < o.RequestID
	}
	if k.Layer != o.Layer {
		return k.Layer < o.Layer
	}
	return k.Offset < o.Offset
}

func (k MappingKey) String() string {
	return fmt.Sprintf("req=%d layer=%d off=%#x", k.RequestID, k.Layer, k.Offset)
}

// MappingValue is the physical page pair backing a MappingKey.
type MappingValue struct {
	KPage PageHandle
	VPage PageHandle
}

// MapRequest carries the arguments of one Map call.
type MapRequest struct {
	RequestID int
	Layer     int
	Offset    uint64
	// KBase and VBase are the base addresses of the layer's K and V ranges.
	KBase DevicePtr
	VBase DevicePtr
	KPage PageHandle
	VPage PageHandle
}

// Key returns the mapping table key for r.
func (r MapRequest) Key() MappingKey {
	return MappingKey{RequestID: r.RequestID, Offset: r.Offset, Layer: r.Layer}
}

// AddressRanges is implemented by the owner of the per-layer K/V virtual
// ranges. The Manager only reads base addresses; it never reserves ranges.
type AddressRanges interface {
	NumLayers() int
	KBase(layer int) DevicePtr
	VBase(layer int) DevicePtr
	// RangeSize is the fixed length in bytes of every K and V range.
	RangeSize() uint64
}
