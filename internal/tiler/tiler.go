// Package tiler renders the atlas grid as Mapbox Vector Tiles on demand.
//
// Every tile carries two layers: "cells" holds the styled grid polygons with
// fill, stroke and width properties, "markers" holds the marker circles as
// points with fill, radius, base, scale and label. Clients redraw markers at
// their current resolution as base * scale / resolution. Cells a style function leaves
// unstyled are not encoded, so the browser only draws what the current
// selection shows.
package tiler

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/simplify"

	"github.com/joeblew999/plat-atlas/internal/grid"
	"github.com/joeblew999/plat-atlas/internal/style"
)

// Layer names inside each tile.
const (
	CellsLayer   = "cells"
	MarkersLayer = "markers"
)

// MaxZoom is the deepest zoom served.
const MaxZoom = 22

// TileSize is the pixel size of a tile. The viewer's tile grid must use the
// same size, or markers drawn from Resolution are off by the ratio.
const TileSize = 256

// earthCircumference is the web mercator world width in meters.
const earthCircumference = 2 * math.Pi * 6378137

// Resolution of web mercator at zoom 0, in meters per pixel.
const baseResolution = earthCircumference / TileSize

// Resolution returns the map resolution (meters per pixel) at zoom z for
// TileSize tiles. Style functions receive it to scale markers.
func Resolution(z maptile.Zoom) float64 {
	return baseResolution / math.Exp2(float64(z))
}

// Renderer encodes grid cells with a style function.
type Renderer struct {
	grid *grid.Grid
}

// New creates a renderer for g.
func New(g *grid.Grid) *Renderer {
	return &Renderer{grid: g}
}

// Tile renders one tile. The result is gzip-compressed MVT, or nil when
// no cell in the tile is styled. Empty layers are left out.
func (r *Renderer) Tile(t maptile.Tile, fn style.Func) ([]byte, error) {
	if t.Z > MaxZoom || t.X >= 1<<t.Z || t.Y >= 1<<t.Z {
		return nil, fmt.Errorf("tile %d/%d/%d out of range", t.Z, t.X, t.Y)
	}
	if fn == nil {
		fn = style.None
	}

	bound := bufferedBound(t.Bound())
	resolution := Resolution(t.Z)

	cells := geojson.NewFeatureCollection()
	markers := geojson.NewFeatureCollection()
	for _, c := range r.grid.Intersecting(bound) {
		if c.ID == "" {
			continue
		}
		styles := fn(c.Feature(), resolution)
		order := 0
		for _, s := range styles {
			switch s.Kind {
			case style.KindPolygon:
				geom := cloneGeometry(c.Geometry)
				if geom == nil {
					continue
				}
				f := geojson.NewFeature(geom)
				f.Properties["id"] = c.ID
				f.Properties["fill"] = string(s.Fill)
				f.Properties["stroke"] = string(s.Stroke)
				f.Properties["width"] = s.Width
				cells.Append(f)
			case style.KindCircle:
				at := c.Centroid
				if s.Anchor != nil {
					at = *s.Anchor
				}
				f := geojson.NewFeature(orb.Point{at[0], at[1]})
				f.Properties["id"] = c.ID
				f.Properties["fill"] = string(s.Fill)
				f.Properties["radius"] = s.Radius
				f.Properties["base"] = s.BaseRadius
				f.Properties["scale"] = s.Scale
				f.Properties["label"] = s.Label
				f.Properties["order"] = order
				order++
				markers.Append(f)
			}
		}
	}
	if len(cells.Features) == 0 && len(markers.Features) == 0 {
		return nil, nil
	}

	var layers mvt.Layers
	for _, l := range []*mvt.Layer{mvt.NewLayer(CellsLayer, cells), mvt.NewLayer(MarkersLayer, markers)} {
		if epsilon := simplifyEpsilon(t.Z); epsilon > 0 {
			l.Simplify(simplify.DouglasPeucker(epsilon))
		}
		l.Clip(bound)
		l.ProjectToTile(t)
		l.RemoveEmpty(0.5, 0.5)
		if len(l.Features) > 0 {
			layers = append(layers, l)
		}
	}
	if len(layers) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(layers)
	if err != nil {
		return nil, fmt.Errorf("encoding tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	return data, nil
}

// bufferedBound grows a tile bound by an eighth of its size on each side
// so strokes and markers near the edge are not cut.
func bufferedBound(b orb.Bound) orb.Bound {
	dx := (b.Max[0] - b.Min[0]) / 8
	dy := (b.Max[1] - b.Min[1]) / 8
	return orb.Bound{
		Min: orb.Point{b.Min[0] - dx, b.Min[1] - dy},
		Max: orb.Point{b.Max[0] + dx, b.Max[1] + dy},
	}
}

// simplifyEpsilon is the Douglas-Peucker tolerance in degrees. Grid cells
// are simple rings, so only the widest zooms are simplified.
func simplifyEpsilon(zoom maptile.Zoom) float64 {
	switch {
	case zoom >= 6:
		return 0
	case zoom >= 4:
		return 0.0005
	default:
		return 0.001
	}
}

// cloneGeometry deep-copies a cell so Clip and ProjectToTile, which work in
// place, leave the grid untouched.
func cloneGeometry(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Polygon:
		return clonePolygon(geom)
	case orb.MultiPolygon:
		clone := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			clone[i] = clonePolygon(poly)
		}
		return clone
	default:
		return nil
	}
}

func clonePolygon(p orb.Polygon) orb.Polygon {
	clone := make(orb.Polygon, len(p))
	for i, ring := range p {
		clone[i] = make(orb.Ring, len(ring))
		copy(clone[i], ring)
	}
	return clone
}
