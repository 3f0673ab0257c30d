package vmm

import (
	"errors"
	"testing"
)

func TestReserve_GrowsToSizerTarget(t *testing.T) {
	var got struct {
		layers   int
		free     uint64
		pageSize uint64
	}
	sizer := func(numLayers int, freeMemory, pageSize uint64) int {
		got.layers, got.free, got.pageSize = numLayers, freeMemory, pageSize
		return 1000
	}
	m, fb, _, _ := newTestManager(t, sizer)
	n, err := m.Reserve(32, 8_000_000_000)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if n != 1000 || m.PoolSize() != 1000 {
		t.Fatalf("pool=%d/%d want 1000", n, m.PoolSize())
	}
	if fb.count("create") != 1000 {
		t.Fatalf("create calls=%d", fb.count("create"))
	}
	if got.layers != 32 || got.free != 8_000_000_000 || got.pageSize != testPageSize {
		t.Fatalf("sizer inputs=%+v", got)
	}
}

func TestReserve_Idempotent(t *testing.T) {
	m, fb, _, _ := newTestManager(t, fixedSizer(10))
	if _, err := m.Reserve(1, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	n, err := m.Reserve(1, 0)
	if err != nil || n != 10 {
		t.Fatalf("second reserve: n=%d err=%v", n, err)
	}
	if fb.count("create") != 10 {
		t.Fatalf("second reserve created pages: %d", fb.count("create"))
	}
}

func TestReserve_NeverShrinks(t *testing.T) {
	target := 8
	m, _, _, _ := newTestManager(t, func(int, uint64, uint64) int { return target })
	if _, err := m.Reserve(1, 0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	target = 3
	if n, _ := m.Reserve(1, 0); n != 8 {
		t.Fatalf("pool shrank to %d", n)
	}
	target = 12
	if n, _ := m.Reserve(1, 0); n != 12 {
		t.Fatalf("pool=%d want 12", n)
	}
	pages := m.Pages()
	seen := map[PageHandle]bool{}
	for _, h := range pages {
		if !h.Valid() || seen[h] {
			t.Fatalf("bad or duplicate handle %d", h)
		}
		seen[h] = true
	}
}

func TestReserve_CreateFailureIsFatal(t *testing.T) {
	m, fb, _, _ := newTestManager(t, fixedSizer(5))
	fb.createFailAt = 3
	n, err := m.Reserve(1, 0)
	if !IsFatal(err) || !errors.Is(err, errInjected) {
		t.Fatalf("expected fatal create error, got %v", err)
	}
	if n != 2 || m.PoolSize() != 2 {
		t.Fatalf("pool=%d want the 2 pages created before the failure", m.PoolSize())
	}
}

func TestReserve_BeforeInitIsFatal(t *testing.T) {
	m := NewWithConfig(Config{PageSize: testPageSize, Backend: newFakeBackend(testPageSize), Sizer: fixedSizer(1)})
	if _, err := m.Reserve(1, 0); !IsFatal(err) || !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected fatal ErrNotInitialized, got %v", err)
	}
}

func TestDefaultSizer(t *testing.T) {
	cases := []struct {
		layers int
		free   uint64
		page   uint64
		want   int
	}{
		{layers: 1, free: 10 * testPageSize, page: testPageSize, want: 10},
		{layers: 2, free: 10 * testPageSize, page: testPageSize, want: 8},
		{layers: 32, free: 8_000_000_000, page: testPageSize, want: 3776},
		{layers: 4, free: testPageSize - 1, page: testPageSize, want: 0},
		{layers: 0, free: 1 << 30, page: testPageSize, want: 0},
		{layers: 1, free: 1 << 30, page: 0, want: 0},
	}
	for _, c := range cases {
		if got := DefaultSizer(c.layers, c.free, c.page); got != c.want {
			t.Fatalf("DefaultSizer(%d,%d,%d)=%d want %d", c.layers, c.free, c.page, got, c.want)
		}
	}
}
