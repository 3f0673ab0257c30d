// Package sim is an in-process paging device. It implements vmm.Backend with
// the bookkeeping a real driver enforces (reserved ranges, live handles,
// single binding per slot) so the paging core can run without a GPU.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"vattn/internal/vmm"
)

// Kind selects the device flavour.
type Kind int

const (
	// KindPinned is the default backend: pinned device pages.
	KindPinned Kind = iota
	// KindUVM is the large-page backend.
	KindUVM
)

func (k Kind) String() string {
	switch k {
	case KindPinned:
		return "pinned"
	case KindUVM:
		return "uvm"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Op names a device call for counters and fault injection.
type Op string

const (
	OpContext     Op = "context"
	OpGranularity Op = "granularity"
	OpCreate      Op = "create"
	OpMap         Op = "map"
	OpUnmap       Op = "unmap"
	OpSetAccess   Op = "set_access"
	OpReserve     Op = "reserve"
	OpAddressFree Op = "address_free"
	OpRelease     Op = "release"
)

var (
	ErrNotReserved   = errors.New("address not inside a reserved range")
	ErrAlreadyMapped = errors.New("address range already mapped")
	ErrNotMapped     = errors.New("address range not mapped")
	ErrBadHandle     = errors.New("unknown page handle")
	ErrHandleInUse   = errors.New("page handle still mapped")
	ErrRangeInUse    = errors.New("address range still has mappings")
	ErrSize          = errors.New("size does not match granularity")
	ErrOutOfMemory   = errors.New("device out of memory")
)

// Options configures a Device.
type Options struct {
	Kind   Kind
	Device int
	// Granularity is the minimum allocation size reported by the device.
	Granularity uint64
	// Capacity bounds the physical bytes that can be created. Zero is unbounded.
	Capacity uint64
	// NoContext simulates a process that never initialized the device runtime.
	NoContext bool
}

type binding struct {
	handle vmm.PageHandle
	size   uint64
	access vmm.AccessDescriptor
}

// Device is a simulated paging device. It is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	opts Options

	nextHandle vmm.PageHandle
	nextVA     vmm.DevicePtr
	used       uint64

	handles  map[vmm.PageHandle]uint64  // handle -> size
	refs     map[vmm.PageHandle]int     // handle -> live bindings
	bindings map[vmm.DevicePtr]*binding // slot base -> binding
	ranges   map[vmm.DevicePtr]uint64   // reserved base -> size
	calls    map[Op]int
	faults   map[Op]func(va vmm.DevicePtr) error
}

// New returns a Device configured by opts.
func New(opts Options) *Device {
	if opts.Granularity == 0 {
		opts.Granularity = 2 << 20
	}
	return &Device{
		opts:     opts,
		nextVA:   vmm.DevicePtr(0x7f00_0000_0000),
		handles:  make(map[vmm.PageHandle]uint64),
		refs:     make(map[vmm.PageHandle]int),
		bindings: make(map[vmm.DevicePtr]*binding),
		ranges:   make(map[vmm.DevicePtr]uint64),
		calls:    make(map[Op]int),
		faults:   make(map[Op]func(vmm.DevicePtr) error),
	}
}

// Inject installs fn to run before every op call; a non-nil result fails the
// call. A nil fn removes the fault.
func (d *Device) Inject(op Op, fn func(va vmm.DevicePtr) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.faults, op)
		return
	}
	d.faults[op] = fn
}

// Calls returns how many times op was invoked.
func (d *Device) Calls(op Op) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// enter counts op and runs its fault. d.mu must be held.
func (d *Device) enter(op Op, va vmm.DevicePtr) error {
	d.calls[op]++
	if fn := d.faults[op]; fn != nil {
		if err := fn(va); err != nil {
			return fmt.Errorf("sim %s: %w", op, err)
		}
	}
	return nil
}

func (d *Device) Name() string { return d.opts.Kind.String() }

func (d *Device) CurrentContext() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpContext, 0); err != nil {
		return false, err
	}
	return !d.opts.NoContext, nil
}

func (d *Device) Granularity(prop vmm.AllocationProperties) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpGranularity, 0); err != nil {
		return 0, err
	}
	if prop.Location.Type != vmm.LocationDevice || prop.Location.ID != d.opts.Device {
		return 0, fmt.Errorf("sim granularity: location %+v is not device %d", prop.Location, d.opts.Device)
	}
	return d.opts.Granularity, nil
}

func (d *Device) Create(size uint64, prop vmm.AllocationProperties) (vmm.PageHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreate, 0); err != nil {
		return 0, err
	}
	if size == 0 || size%d.opts.Granularity != 0 {
		return 0, fmt.Errorf("sim create %d bytes: %w", size, ErrSize)
	}
	if d.opts.Capacity > 0 && d.used+size > d.opts.Capacity {
		return 0, fmt.Errorf("sim create: %w", ErrOutOfMemory)
	}
	d.nextHandle++
	d.handles[d.nextHandle] = size
	d.used += size
	return d.nextHandle, nil
}

// ReserveAddress reserves a virtual range of size bytes, aligned to the
// granularity, and returns its base.
func (d *Device) ReserveAddress(size uint64) (vmm.DevicePtr, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpReserve, 0); err != nil {
		return 0, err
	}
	if size == 0 || size%d.opts.Granularity != 0 {
		return 0, fmt.Errorf("sim reserve %d bytes: %w", size, ErrSize)
	}
	base := d.nextVA
	d.ranges[base] = size
	// Leave a one-granule hole between ranges so overruns are detected.
	d.nextVA += vmm.DevicePtr(size + d.opts.Granularity)
	return base, nil
}

// inRange reports whether [va, va+size) lies in one reserved range and
// returns that range's base. d.mu must be held.
func (d *Device) inRange(va vmm.DevicePtr, size uint64) (vmm.DevicePtr, bool) {
	for base, n := range d.ranges {
		if va >= base && uint64(va-base)+size <= n {
			return base, true
		}
	}
	return 0, false
}

func (d *Device) Map(va vmm.DevicePtr, size uint64, h vmm.PageHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMap, va); err != nil {
		return err
	}
	hsize, ok := d.handles[h]
	if !ok {
		return fmt.Errorf("sim map handle %d: %w", h, ErrBadHandle)
	}
	if size != hsize {
		return fmt.Errorf("sim map %d bytes of a %d byte page: %w", size, hsize, ErrSize)
	}
	if uint64(va)%d.opts.Granularity != 0 {
		return fmt.Errorf("sim map at %s: %w", va, ErrSize)
	}
	if _, ok := d.inRange(va, size); !ok {
		return fmt.Errorf("sim map at %s: %w", va, ErrNotReserved)
	}
	if _, ok := d.bindings[va]; ok {
		return fmt.Errorf("sim map at %s: %w", va, ErrAlreadyMapped)
	}
	d.bindings[va] = &binding{handle: h, size: size}
	d.refs[h]++
	return nil
}

func (d *Device) Unmap(va vmm.DevicePtr, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpUnmap, va); err != nil {
		return err
	}
	b, ok := d.bindings[va]
	if !ok || b.size != size {
		return fmt.Errorf("sim unmap at %s: %w", va, ErrNotMapped)
	}
	delete(d.bindings, va)
	d.refs[b.handle]--
	if d.refs[b.handle] == 0 {
		delete(d.refs, b.handle)
	}
	return nil
}

func (d *Device) SetAccess(va vmm.DevicePtr, size uint64, desc vmm.AccessDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetAccess, va); err != nil {
		return err
	}
	b, ok := d.bindings[va]
	if !ok || b.size != size {
		return fmt.Errorf("sim set access at %s: %w", va, ErrNotMapped)
	}
	if desc.Location.ID != d.opts.Device {
		return fmt.Errorf("sim set access: location %+v is not device %d", desc.Location, d.opts.Device)
	}
	b.access = desc
	return nil
}

func (d *Device) AddressFree(va vmm.DevicePtr, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpAddressFree, va); err != nil {
		return err
	}
	n, ok := d.ranges[va]
	if !ok || n != size {
		return fmt.Errorf("sim address free at %s: %w", va, ErrNotReserved)
	}
	for slot := range d.bindings {
		if slot >= va && uint64(slot-va) < n {
			return fmt.Errorf("sim address free at %s: %w", va, ErrRangeInUse)
		}
	}
	delete(d.ranges, va)
	return nil
}

func (d *Device) Release(h vmm.PageHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRelease, 0); err != nil {
		return err
	}
	size, ok := d.handles[h]
	if !ok {
		return fmt.Errorf("sim release %d: %w", h, ErrBadHandle)
	}
	if d.refs[h] > 0 {
		return fmt.Errorf("sim release %d: %w", h, ErrHandleInUse)
	}
	delete(d.handles, h)
	d.used -= size
	return nil
}

// Binding reports the page and access bound at va.
func (d *Device) Binding(va vmm.DevicePtr) (vmm.PageHandle, vmm.AccessDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[va]
	if !ok {
		return 0, vmm.AccessDescriptor{}, false
	}
	return b.handle, b.access, true
}

// Stats is a point-in-time view of device state.
type Stats struct {
	Handles   int
	Bindings  int
	Ranges    int
	UsedBytes uint64
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Handles: len(d.handles), Bindings: len(d.bindings), Ranges: len(d.ranges), UsedBytes: d.used}
}
