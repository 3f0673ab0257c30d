package vmm

// Sizer computes how many physical pages the pool should hold. It must be a
// pure function of its inputs.
type Sizer func(numLayers int, freeMemory, pageSize uint64) int

// DefaultSizer fills freeMemory with pages, rounded down so that every growth
// step can take one K and one V page for each of numLayers layers.
func DefaultSizer(numLayers int, freeMemory, pageSize uint64) int {
	if numLayers <= 0 || pageSize == 0 {
		return 0
	}
	pages := freeMemory / pageSize
	step := uint64(2 * numLayers)
	return int(pages - pages%step)
}
