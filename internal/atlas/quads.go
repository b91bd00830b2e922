package atlas

import (
	"fmt"
	"slices"
)

// QuadsData indexes the cells of a single entity (a species) with the
// attribute levels observed there. Lookups return the first match; repeated
// cell ids are kept as given.
type QuadsData struct {
	name   string
	quads  []string
	values []CellValues
}

// NewQuadsData builds the index. quads and values must have equal length.
func NewQuadsData(name string, quads []string, values []CellValues) (*QuadsData, error) {
	if len(quads) != len(values) {
		return nil, fmt.Errorf("%w: %s has %d quads and %d values", ErrMalformed, name, len(quads), len(values))
	}
	return &QuadsData{
		name:   name,
		quads:  slices.Clone(quads),
		values: slices.Clone(values),
	}, nil
}

// Name is the entity the index was built for.
func (q *QuadsData) Name() string { return q.name }

// Len is the number of indexed positions.
func (q *QuadsData) Len() int { return len(q.quads) }

// Cells returns the indexed cell ids in source order.
func (q *QuadsData) Cells() []string { return slices.Clone(q.quads) }

// Value returns the levels at the first position holding cell.
// The boolean is false when the cell is absent.
func (q *QuadsData) Value(cell string) (CellValues, bool) {
	i := slices.Index(q.quads, cell)
	if i < 0 {
		return nil, false
	}
	return q.values[i], true
}

// Exists reports whether cell appears anywhere in the index.
func (q *QuadsData) Exists(cell string) bool {
	return slices.Contains(q.quads, cell)
}

// UniqueValues returns the distinct levels across all cells in natural order.
func (q *QuadsData) UniqueValues() []Level {
	var out []Level
	for _, vs := range q.values {
		for _, v := range vs {
			if !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	SortLevels(out)
	return out
}

// HasMultipleValues reports whether more than one distinct level exists.
func (q *QuadsData) HasMultipleValues() bool {
	return len(q.UniqueValues()) > 1
}
