// Package config loads the atlas presentation settings: page chrome,
// observation style, color ramp and per-class marker symbols.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/style"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid atlas config")

// Atlas is the YAML document.
//
//	title: Species Atlas example
//	observation: {fill: "#3e8ed0aa", stroke: "#ffffff75", width: 3}
//	markers:
//	  Class1:
//	    - {match: 2, radius: 5, fill: "#e09f3e", label: Some label here}
type Atlas struct {
	Title       string                         `yaml:"title" json:"title"`
	Footer      string                         `yaml:"footer" json:"footer"`
	Dataset     string                         `yaml:"dataset" json:"dataset"`
	Grid        string                         `yaml:"grid" json:"grid"`
	IDProperty  string                         `yaml:"id_property" json:"idProperty"`
	Observation style.Observation              `yaml:"observation" json:"observation"`
	MarkerScale float64                        `yaml:"marker_scale" json:"markerScale"`
	Palette     []style.Color                  `yaml:"palette" json:"palette,omitempty"`
	Markers     map[string][]style.MarkerStyle `yaml:"markers" json:"markers,omitempty"`
}

// Default reproduces the stock atlas page.
func Default() *Atlas {
	return &Atlas{
		Title:       "Species Atlas example",
		Footer:      "Some text for the bottom of the page that allows some <b> html notation </b>",
		Dataset:     "species.json",
		Grid:        "grid.geojson",
		IDProperty:  "grdref",
		Observation: style.DefaultObservation,
		MarkerScale: style.DefaultMarkerScale,
		Markers: map[string][]style.MarkerStyle{
			"Class1": {
				{Match: atlas.IntLevel(2), Radius: 5, Fill: "#e09f3e", Label: "Some label here"},
				{Match: atlas.IntLevel(3), Radius: 4, Fill: "#9e2a2b", Label: "Another label"},
				{Match: atlas.IntLevel(4), Radius: 2, Fill: "#300505", Label: "Last label by radius order"},
			},
		},
	}
}

// Load reads path, or returns Default when path is empty.
func Load(path string) (*Atlas, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a YAML document over the defaults and validates it. Keys
// missing from the document keep their default values; a markers key
// replaces the default marker set entirely.
func Decode(r io.Reader) (*Atlas, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		var doc Atlas
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cfg.merge(&doc)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *Atlas) merge(o *Atlas) {
	if o.Title != "" {
		a.Title = o.Title
	}
	if o.Footer != "" {
		a.Footer = o.Footer
	}
	if o.Dataset != "" {
		a.Dataset = o.Dataset
	}
	if o.Grid != "" {
		a.Grid = o.Grid
	}
	if o.IDProperty != "" {
		a.IDProperty = o.IDProperty
	}
	if o.Observation.Fill != "" {
		a.Observation.Fill = o.Observation.Fill
	}
	if o.Observation.Stroke != "" {
		a.Observation.Stroke = o.Observation.Stroke
	}
	if o.Observation.Width != 0 {
		a.Observation.Width = o.Observation.Width
	}
	if o.MarkerScale != 0 {
		a.MarkerScale = o.MarkerScale
	}
	if o.Palette != nil {
		a.Palette = o.Palette
	}
	if o.Markers != nil {
		a.Markers = o.Markers
	}
}

// Validate checks colors, radii and marker uniqueness.
func (a *Atlas) Validate() error {
	if err := a.Observation.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if a.MarkerScale <= 0 {
		return fmt.Errorf("%w: marker_scale must be positive", ErrInvalid)
	}
	if a.Palette != nil {
		if len(a.Palette) != style.Steps {
			return fmt.Errorf("%w: palette needs %d colors, got %d", ErrInvalid, style.Steps, len(a.Palette))
		}
		if err := a.Ramp().Validate(); err != nil {
			return fmt.Errorf("%w: palette: %v", ErrInvalid, err)
		}
	}
	for class, defs := range a.Markers {
		seen := map[atlas.Level]bool{}
		for i, m := range defs {
			if m.Match == "" {
				return fmt.Errorf("%w: markers.%s[%d]: match is required", ErrInvalid, class, i)
			}
			if seen[m.Match] {
				return fmt.Errorf("%w: markers.%s: duplicate match %s", ErrInvalid, class, m.Match)
			}
			seen[m.Match] = true
			if m.Radius <= 0 {
				return fmt.Errorf("%w: markers.%s[%d]: radius must be positive", ErrInvalid, class, i)
			}
			if err := m.Fill.Validate(); err != nil {
				return fmt.Errorf("%w: markers.%s[%d]: %v", ErrInvalid, class, i, err)
			}
		}
	}
	return nil
}

// Ramp returns the configured palette or the default ramp.
func (a *Atlas) Ramp() style.Ramp {
	if len(a.Palette) != style.Steps {
		return style.DefaultRamp
	}
	var r style.Ramp
	copy(r[:], a.Palette)
	return r
}

// MarkersFor returns the marker list of class, nil when none is configured.
func (a *Atlas) MarkersFor(class string) []style.MarkerStyle {
	return a.Markers[class]
}
