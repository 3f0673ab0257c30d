package sim

import (
	"fmt"

	"vattn/internal/vmm"
)

// Ranges owns one K and one V virtual range per layer, reserved on a Device.
// It implements vmm.AddressRanges.
type Ranges struct {
	k, v []vmm.DevicePtr
	size uint64
}

// NewRanges reserves K and V ranges of size bytes for numLayers layers.
func NewRanges(d *Device, numLayers int, size uint64) (*Ranges, error) {
	r := &Ranges{size: size}
	for i := 0; i < numLayers; i++ {
		k, err := d.ReserveAddress(size)
		if err != nil {
			return nil, fmt.Errorf("reserve k range for layer %d: %w", i, err)
		}
		v, err := d.ReserveAddress(size)
		if err != nil {
			return nil, fmt.Errorf("reserve v range for layer %d: %w", i, err)
		}
		r.k = append(r.k, k)
		r.v = append(r.v, v)
	}
	return r, nil
}

func (r *Ranges) NumLayers() int                { return len(r.k) }
func (r *Ranges) KBase(layer int) vmm.DevicePtr { return r.k[layer] }
func (r *Ranges) VBase(layer int) vmm.DevicePtr { return r.v[layer] }
func (r *Ranges) RangeSize() uint64             { return r.size }
