package atlas

import "sort"

// RichnessMap counts, per cell, the species of a class recorded there.
type RichnessMap map[string]int

// ComputeRichness sums species presence per cell over a class. A species
// listing a cell twice counts twice.
func ComputeRichness(c *ClassRecord) RichnessMap {
	r := RichnessMap{}
	if c == nil {
		return r
	}
	for _, sp := range c.Species {
		for _, cell := range sp.Quad {
			r[cell]++
		}
	}
	return r
}

// Count returns the richness of cell and whether the cell is present.
func (r RichnessMap) Count(cell string) (int, bool) {
	n, ok := r[cell]
	return n, ok
}

// Range returns the smallest and largest counts. ok is false for an empty map.
func (r RichnessMap) Range() (min, max int, ok bool) {
	for _, n := range r {
		if !ok {
			min, max, ok = n, n, true
			continue
		}
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	return min, max, ok
}

// Cells returns the cell ids sorted for stable output.
func (r RichnessMap) Cells() []string {
	cells := make([]string, 0, len(r))
	for c := range r {
		cells = append(cells, c)
	}
	sort.Strings(cells)
	return cells
}
