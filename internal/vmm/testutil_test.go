package vmm

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

const testPageSize = 2 << 20

var errInjected = errors.New("injected failure")

// fakeBackend is an in-memory backend that counts calls, records the order of
// device operations and fails on demand.
type fakeBackend struct {
	mu          sync.Mutex
	name        string
	noContext   bool
	ctxErr      error
	granularity uint64
	next        PageHandle

	createFailAt int // 1-based create call that fails; 0 never
	mapErr       error
	accessErr    error
	unmapFail    map[DevicePtr]bool
	freeFail     map[DevicePtr]bool
	releaseFail  map[PageHandle]bool

	calls  map[string]int
	ops    []string
	mapped map[DevicePtr]PageHandle
	access map[DevicePtr]AccessDescriptor
}

func newFakeBackend(granularity uint64) *fakeBackend {
	return &fakeBackend{
		name:        "fake",
		granularity: granularity,
		unmapFail:   map[DevicePtr]bool{},
		freeFail:    map[DevicePtr]bool{},
		releaseFail: map[PageHandle]bool{},
		calls:       map[string]int{},
		mapped:      map[DevicePtr]PageHandle{},
		access:      map[DevicePtr]AccessDescriptor{},
	}
}

func (f *fakeBackend) record(op string) {
	f.calls[op]++
	f.ops = append(f.ops, op)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) CurrentContext() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("context")
	return !f.noContext, f.ctxErr
}

func (f *fakeBackend) Granularity(prop AllocationProperties) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("granularity")
	return f.granularity, nil
}

func (f *fakeBackend) Create(size uint64, prop AllocationProperties) (PageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	if f.createFailAt > 0 && f.calls["create"] == f.createFailAt {
		return 0, errInjected
	}
	f.next++
	return f.next, nil
}

func (f *fakeBackend) Map(va DevicePtr, size uint64, h PageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("map")
	if f.mapErr != nil {
		return f.mapErr
	}
	if _, ok := f.mapped[va]; ok {
		return errors.New("already mapped")
	}
	f.mapped[va] = h
	return nil
}

func (f *fakeBackend) Unmap(va DevicePtr, size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("unmap")
	if f.unmapFail[va] {
		return errInjected
	}
	delete(f.mapped, va)
	delete(f.access, va)
	return nil
}

func (f *fakeBackend) SetAccess(va DevicePtr, size uint64, desc AccessDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("access")
	if f.accessErr != nil {
		return f.accessErr
	}
	f.access[va] = desc
	return nil
}

func (f *fakeBackend) AddressFree(va DevicePtr, size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("address_free")
	if f.freeFail[va] {
		return errInjected
	}
	return nil
}

func (f *fakeBackend) Release(h PageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("release")
	if f.releaseFail[h] {
		return errInjected
	}
	return nil
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// fakeRanges lays out per-layer K and V ranges at fixed addresses.
type fakeRanges struct {
	k, v []DevicePtr
	size uint64
}

func newFakeRanges(layers int, size uint64) *fakeRanges {
	r := &fakeRanges{size: size}
	for i := 0; i < layers; i++ {
		r.k = append(r.k, DevicePtr(0x1000_0000_0000+uint64(2*i)*size))
		r.v = append(r.v, DevicePtr(0x1000_0000_0000+uint64(2*i+1)*size))
	}
	return r
}

func (r *fakeRanges) NumLayers() int            { return len(r.k) }
func (r *fakeRanges) KBase(layer int) DevicePtr { return r.k[layer] }
func (r *fakeRanges) VBase(layer int) DevicePtr { return r.v[layer] }
func (r *fakeRanges) RangeSize() uint64         { return r.size }

// newTestManager returns an initialized manager over a fresh fakeBackend.
// Log output is captured in the returned buffer.
func newTestManager(t *testing.T, sizer Sizer) (*Manager, *fakeBackend, *MemoryPublisher, *bytes.Buffer) {
	t.Helper()
	fb := newFakeBackend(testPageSize)
	pub := NewMemoryPublisher()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	m := NewWithConfig(Config{
		Device:    0,
		PageSize:  testPageSize,
		Backend:   fb,
		Sizer:     sizer,
		Logger:    &logger,
		Publisher: pub,
	})
	if _, err := m.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return m, fb, pub, &buf
}

func fixedSizer(n int) Sizer {
	return func(int, uint64, uint64) int { return n }
}

// countLevel counts JSON log lines at the given level.
func countLevel(buf *bytes.Buffer, level string) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"level":"`+level+`"`) {
			n++
		}
	}
	return n
}
