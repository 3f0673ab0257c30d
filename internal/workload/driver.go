// Package workload drives a vmm.Manager the way a serving scheduler does:
// requests occupy batch slots, and every step grows each slot's K/V cache to
// cover its current sequence length by mapping fresh page pairs.
package workload

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vattn/internal/vmm"
)

// Config sizes the batch.
type Config struct {
	// MaxBatch is the number of request slots carved out of each layer range.
	MaxBatch int
	// BytesPerToken is the K (and V) footprint of one token in one layer.
	BytesPerToken uint64
	Logger        *zerolog.Logger
}

// Driver hands pool pages to requests. Pages stay mapped to their slot after
// Release and are reused by the next request admitted into that slot.
type Driver struct {
	mgr           *vmm.Manager
	ranges        vmm.AddressRanges
	pageSize      uint64
	slotSize      uint64
	bytesPerToken uint64
	log           zerolog.Logger

	mu     sync.Mutex
	free   []vmm.PageHandle
	active []bool
	mapped []int // pages assigned per layer, by slot
	// pending holds growth whose handles are assigned but whose Map calls
	// did not all complete. It is replayed first by the next Step.
	pending []growth
}

// New builds a Driver over the pages currently held by mgr.
func New(mgr *vmm.Manager, ranges vmm.AddressRanges, cfg Config) (*Driver, error) {
	if cfg.MaxBatch <= 0 {
		return nil, fmt.Errorf("max batch must be positive, got %d", cfg.MaxBatch)
	}
	if cfg.BytesPerToken == 0 {
		return nil, fmt.Errorf("bytes per token must be positive")
	}
	ps := mgr.PageSize()
	slot := ranges.RangeSize() / uint64(cfg.MaxBatch)
	slot -= slot % ps
	if slot == 0 {
		return nil, fmt.Errorf("range of %d bytes cannot hold %d slots of at least one page", ranges.RangeSize(), cfg.MaxBatch)
	}
	d := &Driver{
		mgr:           mgr,
		ranges:        ranges,
		pageSize:      ps,
		slotSize:      slot,
		bytesPerToken: cfg.BytesPerToken,
		free:          mgr.Pages(),
		active:        make([]bool, cfg.MaxBatch),
		mapped:        make([]int, cfg.MaxBatch),
	}
	if cfg.Logger != nil {
		d.log = *cfg.Logger
	} else {
		d.log = zerolog.Nop()
	}
	return d, nil
}

// Admit claims a free batch slot, preferring one that already has pages.
func (d *Driver) Admit() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	best := -1
	for i, busy := range d.active {
		if busy {
			continue
		}
		if best < 0 || d.mapped[i] > d.mapped[best] {
			best = i
		}
	}
	if best < 0 {
		return 0, ErrNoSlot
	}
	d.active[best] = true
	return best, nil
}

// Release returns slot to the batch. Its pages stay mapped.
func (d *Driver) Release(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot >= 0 && slot < len(d.active) {
		d.active[slot] = false
	}
}

// Free returns the number of unassigned pool pages.
func (d *Driver) Free() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.free)
}

// Mapped returns the pages mapped per layer for slot.
func (d *Driver) Mapped(slot int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapped[slot]
}

// pagesFor returns the pages per layer needed to hold tokens.
func (d *Driver) pagesFor(tokens int) int {
	b := uint64(tokens) * d.bytesPerToken
	return int((b + d.pageSize - 1) / d.pageSize)
}

type growth struct {
	slot   int
	page   int
	kPages []vmm.PageHandle // by layer
	vPages []vmm.PageHandle
}

// Step grows every slot in seqLens (slot -> tokens) to cover its length.
// Map calls for different layers run concurrently. Fatal vmm errors are
// returned wrapped; check them with vmm.IsFatal.
//
// If Step fails, for example because ctx is cancelled, the pages it assigned
// stay with their slots and are mapped by the next Step. Map skips keys it
// already holds, so pairs mapped before the failure are not mapped twice.
func (d *Driver) Step(ctx context.Context, seqLens map[int]int) error {
	work, err := d.plan(seqLens)
	if err != nil {
		return err
	}
	if len(work) == 0 {
		return nil
	}
	if err := d.run(ctx, work); err != nil {
		d.mu.Lock()
		d.pending = append(work, d.pending...)
		d.mu.Unlock()
		d.log.Warn().Err(err).Int("pages", len(work)).Msg("step incomplete, pages kept for retry")
		return err
	}
	d.log.Debug().Int("pages", len(work)).Int("free", d.Free()).Msg("step mapped")
	return nil
}

// Pending returns the number of page pairs assigned but not yet confirmed
// mapped on every layer.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// run maps every growth in work, one goroutine per layer.
func (d *Driver) run(ctx context.Context, work []growth) error {
	g, gctx := errgroup.WithContext(ctx)
	for layer := 0; layer < d.ranges.NumLayers(); layer++ {
		g.Go(func() error {
			kbase, vbase := d.ranges.KBase(layer), d.ranges.VBase(layer)
			for _, w := range work {
				if err := gctx.Err(); err != nil {
					return err
				}
				err := d.mgr.Map(vmm.MapRequest{
					RequestID: w.slot,
					Layer:     layer,
					Offset:    uint64(w.slot)*d.slotSize + uint64(w.page)*d.pageSize,
					KBase:     kbase,
					VBase:     vbase,
					KPage:     w.kPages[layer],
					VPage:     w.vPages[layer],
				})
				if err != nil {
					return fmt.Errorf("slot %d page %d layer %d: %w", w.slot, w.page, layer, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// plan reserves handles for every missing page of every slot in seqLens and
// advances the per-slot counters. Pending growth from a failed Step comes
// first. Nothing is taken if the free list is short.
func (d *Driver) plan(seqLens map[int]int) ([]growth, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	layers := d.ranges.NumLayers()
	need := 0
	for slot, tokens := range seqLens {
		if slot < 0 || slot >= len(d.active) || !d.active[slot] {
			return nil, fmt.Errorf("slot %d is not admitted", slot)
		}
		if tokens < 0 {
			return nil, fmt.Errorf("slot %d: negative sequence length %d", slot, tokens)
		}
		n := d.pagesFor(tokens)
		if uint64(n)*d.pageSize > d.slotSize {
			return nil, contextTooLongError{slot: slot, tokens: tokens}
		}
		if n > d.mapped[slot] {
			need += (n - d.mapped[slot]) * 2 * layers
		}
	}
	if need > len(d.free) {
		return nil, outOfPagesError{need: need, free: len(d.free)}
	}

	work := d.pending
	d.pending = nil
	for slot, tokens := range seqLens {
		n := d.pagesFor(tokens)
		for p := d.mapped[slot]; p < n; p++ {
			w := growth{slot: slot, page: p, kPages: make([]vmm.PageHandle, layers), vPages: make([]vmm.PageHandle, layers)}
			for l := 0; l < layers; l++ {
				w.kPages[l], w.vPages[l] = d.free[0], d.free[1]
				d.free = d.free[2:]
			}
			work = append(work, w)
		}
		if n > d.mapped[slot] {
			d.mapped[slot] = n
		}
	}
	return work, nil
}
