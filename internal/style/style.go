package style

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-atlas/internal/atlas"
)

// Kind is the symbol a Style draws.
type Kind string

const (
	KindPolygon Kind = "polygon"
	KindCircle  Kind = "circle"
)

// Style is one renderable symbol for a grid cell. Polygon styles paint the
// cell itself; circle styles are markers anchored at the cell centroid.
type Style struct {
	Kind   Kind       `json:"kind" enum:"polygon,circle" doc:"Symbol type"`
	Fill   Color      `json:"fill,omitempty" doc:"Fill color (CSS hex)" example:"#3e8ed0aa"`
	Stroke Color      `json:"stroke,omitempty" doc:"Stroke color (CSS hex)" example:"#ffffff75"`
	Width  float64    `json:"width,omitempty" doc:"Stroke width in pixels"`
	Radius float64    `json:"radius,omitempty" doc:"Circle radius in pixels at the requested resolution"`
	Anchor *orb.Point `json:"anchor,omitempty" doc:"Marker position [lon, lat]"`
	Label  string     `json:"label,omitempty" doc:"Marker legend label"`

	// BaseRadius and Scale let a client recompute Radius at its own
	// resolution: BaseRadius * Scale / resolution.
	BaseRadius float64 `json:"baseRadius,omitempty" doc:"Configured marker radius before scaling"`
	Scale      float64 `json:"scale,omitempty" doc:"Marker scale factor"`
}

// Observation is the polygon style of a cell where the selected species
// was recorded.
type Observation struct {
	Fill   Color   `json:"fill" yaml:"fill"`
	Stroke Color   `json:"stroke" yaml:"stroke"`
	Width  float64 `json:"width" yaml:"width"`
}

// DefaultObservation is the built-in observation style.
var DefaultObservation = Observation{Fill: "#3e8ed0aa", Stroke: "#ffffff75", Width: 3}

// Validate checks colors and width.
func (o Observation) Validate() error {
	if err := o.Fill.Validate(); err != nil {
		return fmt.Errorf("observation fill: %w", err)
	}
	if err := o.Stroke.Validate(); err != nil {
		return fmt.Errorf("observation stroke: %w", err)
	}
	if o.Width < 0 {
		return fmt.Errorf("observation width must not be negative")
	}
	return nil
}

// Polygon returns the cell style for an observation.
func (o Observation) Polygon() Style {
	return Style{Kind: KindPolygon, Fill: o.Fill, Stroke: o.Stroke, Width: o.Width}
}

// Richness cells share one outline.
const (
	RichnessStroke Color   = "#ffffff75"
	RichnessWidth  float64 = 3
)

// DefaultMarkerScale converts configured marker radii to pixels:
// radius * scale / resolution.
const DefaultMarkerScale = 5000

// MarkerStyle is a configured circle symbol drawn in cells whose value set
// contains Match.
type MarkerStyle struct {
	Match  atlas.Level `json:"match" yaml:"match" doc:"Attribute level that triggers the marker"`
	Radius float64     `json:"radius" yaml:"radius" doc:"Base radius"`
	Fill   Color       `json:"fill" yaml:"fill" doc:"Fill color (CSS hex)"`
	Label  string      `json:"label" yaml:"label" doc:"Legend label"`
}

// ScaledRadius converts the base radius to pixels. A non-positive
// resolution leaves the radius unscaled.
func (m MarkerStyle) ScaledRadius(scale, resolution float64) float64 {
	if resolution <= 0 {
		return m.Radius
	}
	return m.Radius * scale / resolution
}

// Markers builds the circle styles for a cell. Only definitions whose Match
// is in values produce a marker; the result is ordered by descending radius
// so larger circles are drawn first.
func Markers(defs []MarkerStyle, values atlas.CellValues, anchor orb.Point, scale, resolution float64) []Style {
	var out []Style
	for _, def := range defs {
		if !values.Contains(def.Match) {
			continue
		}
		at := anchor
		out = append(out, Style{
			Kind:   KindCircle,
			Fill:   def.Fill,
			Radius: def.ScaledRadius(scale, resolution),
			Anchor: &at,
			Label:  def.Label,

			BaseRadius: def.Radius,
			Scale:      scale,
		})
	}
	slices.SortStableFunc(out, func(a, b Style) int {
		return cmp.Compare(b.Radius, a.Radius)
	})
	return out
}

// Feature is what a style function sees of a grid cell.
type Feature struct {
	ID       string
	Centroid orb.Point
}

// Func styles one feature at a map resolution (map units per pixel).
// Implementations must be pure: the renderer calls them per visible
// feature, in no particular order.
type Func func(f Feature, resolution float64) []Style

// None leaves every cell unstyled.
func None(Feature, float64) []Style { return nil }

// Distribution styles the cells of one species: the observation polygon
// plus any configured markers for the cell's levels.
func Distribution(q *atlas.QuadsData, obs Observation, defs []MarkerStyle, scale float64) Func {
	if q == nil {
		return None
	}
	return func(f Feature, resolution float64) []Style {
		if f.ID == "" {
			return nil
		}
		values, ok := q.Value(f.ID)
		if !ok {
			return nil
		}
		styles := []Style{obs.Polygon()}
		if len(defs) > 0 {
			styles = append(styles, Markers(defs, values, f.Centroid, scale, resolution)...)
		}
		return styles
	}
}

// Richness colors each cell of r on ramp between the map's min and max.
func Richness(r atlas.RichnessMap, ramp Ramp) Func {
	lo, hi, ok := r.Range()
	if !ok {
		return None
	}
	return func(f Feature, _ float64) []Style {
		n, ok := r.Count(f.ID)
		if f.ID == "" || !ok {
			return nil
		}
		return []Style{{
			Kind:   KindPolygon,
			Fill:   ramp.ColorFor(float64(n), float64(lo), float64(hi)),
			Stroke: RichnessStroke,
			Width:  RichnessWidth,
		}}
	}
}
