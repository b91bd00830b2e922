// Package grid loads the user grid (a GeoJSON polygon layer in lon/lat) and
// indexes its cells by reference id.
package grid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-atlas/internal/style"
)

// DefaultIDProperty is the feature property holding the cell reference.
const DefaultIDProperty = "grdref"

// ErrEmpty is returned for a grid without polygon features.
var ErrEmpty = errors.New("grid has no polygon cells")

// Cell is one grid polygon.
type Cell struct {
	ID       string
	Geometry orb.Geometry
	Centroid orb.Point
	Bound    orb.Bound
}

// Feature is the view of the cell passed to style functions.
func (c *Cell) Feature() style.Feature {
	return style.Feature{ID: c.ID, Centroid: c.Centroid}
}

// Grid is an immutable set of cells.
type Grid struct {
	cells []Cell
	index map[string]int
	bound orb.Bound
}

// Parse decodes a GeoJSON FeatureCollection. Non-polygon features are
// skipped; polygons without an id property are kept as anonymous cells
// that are never styled.
func Parse(data []byte, idProperty string) (*Grid, error) {
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing grid geojson: %w", err)
	}

	g := &Grid{index: map[string]int{}}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		c := Cell{
			ID:       propertyID(f.Properties, idProperty),
			Geometry: f.Geometry,
			Bound:    f.Geometry.Bound(),
		}
		c.Centroid, _ = planar.CentroidArea(f.Geometry)
		if c.ID != "" {
			if _, dup := g.index[c.ID]; !dup {
				g.index[c.ID] = len(g.cells)
			}
		}
		if len(g.cells) == 0 {
			g.bound = c.Bound
		} else {
			g.bound = g.bound.Union(c.Bound)
		}
		g.cells = append(g.cells, c)
	}
	if len(g.cells) == 0 {
		return nil, ErrEmpty
	}
	return g, nil
}

// propertyID reads the id property as a string. Numeric ids are formatted
// without a fractional part when they are whole.
func propertyID(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Len is the number of cells.
func (g *Grid) Len() int { return len(g.cells) }

// Bound is the extent of all cells.
func (g *Grid) Bound() orb.Bound { return g.bound }

// Cells returns the cells in document order. The slice must not be modified.
func (g *Grid) Cells() []Cell { return g.cells }

// Cell returns the first cell with id.
func (g *Grid) Cell(id string) (*Cell, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return &g.cells[i], true
}

// At returns the first cell containing p.
func (g *Grid) At(p orb.Point) (*Cell, bool) {
	if !g.bound.Contains(p) {
		return nil, false
	}
	for i := range g.cells {
		c := &g.cells[i]
		if !c.Bound.Contains(p) {
			continue
		}
		switch geom := c.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(geom, p) {
				return c, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(geom, p) {
				return c, true
			}
		}
	}
	return nil, false
}

// Intersecting returns the cells whose bounds overlap b.
func (g *Grid) Intersecting(b orb.Bound) []*Cell {
	var out []*Cell
	if !g.bound.Intersects(b) {
		return out
	}
	for i := range g.cells {
		if g.cells[i].Bound.Intersects(b) {
			out = append(out, &g.cells[i])
		}
	}
	return out
}
