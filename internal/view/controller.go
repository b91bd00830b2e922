// Package view holds the per-session selection state of the atlas viewer
// and derives the map style and legend from it.
package view

import (
	"errors"
	"fmt"
	"sync"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/config"
	"github.com/joeblew999/plat-atlas/internal/legend"
	"github.com/joeblew999/plat-atlas/internal/style"
)

var (
	// ErrInvalidMode is returned for an unknown map mode.
	ErrInvalidMode = errors.New("invalid map mode")
	// ErrSelectorDisabled is returned when a selection arrives for a
	// selector the current state keeps disabled.
	ErrSelectorDisabled = errors.New("selector disabled")
)

// Mode is the kind of map shown.
type Mode string

const (
	ModeNone         Mode = ""
	ModeDistribution Mode = "distribution"
	ModeRichness     Mode = "richness"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModeDistribution, ModeRichness:
		return m, nil
	}
	return ModeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// State is an immutable copy of a controller's state. Style is safe to
// call from any goroutine.
type State struct {
	Mode           Mode
	Class          string
	Species        string
	Revision       uint64
	ClassEnabled   bool
	SpeciesEnabled bool
	Classes        []string
	SpeciesOptions []string
	Info           string
	Legend         legend.Legend
	Style          style.Func
}

// Controller is the selection state machine of one viewer session. Writes
// are serialized; readers get State copies.
type Controller struct {
	ds  *atlas.Dataset
	cfg *config.Atlas

	mu       sync.Mutex
	mode     Mode
	class    string
	species  string
	options  []string
	quads    *atlas.QuadsData
	richness atlas.RichnessMap
	info     string
	legend   legend.Legend
	styleFn  style.Func
	revision uint64
}

// NewController starts with no mode selected.
func NewController(ds *atlas.Dataset, cfg *config.Atlas) *Controller {
	return &Controller{
		ds:      ds,
		cfg:     cfg,
		legend:  legend.Empty(),
		styleFn: style.None,
	}
}

// SetMode switches the map kind. Any class or species selection is
// dropped and the map is cleared.
func (c *Controller) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
	c.class, c.species = "", ""
	c.options = nil
	c.quads, c.richness = nil, nil
	c.info = ""
	c.clear()
	return nil
}

// SelectClass picks a class. In richness mode the class richness is
// computed and drawn; in distribution mode the species selector is filled
// and the map waits for a species.
func (c *Controller) SelectClass(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeNone {
		return fmt.Errorf("%w: choose a map type first", ErrSelectorDisabled)
	}
	cl, err := c.ds.Class(name)
	if err != nil {
		return err
	}

	c.class, c.species = cl.Name, ""
	c.quads = nil
	c.info = cl.Info
	c.clear()

	switch c.mode {
	case ModeRichness:
		c.options = nil
		c.richness = atlas.ComputeRichness(cl)
		ramp := c.cfg.Ramp()
		c.legend = legend.ForRichness(c.richness, ramp)
		c.styleFn = style.Richness(c.richness, ramp)
	case ModeDistribution:
		c.richness = nil
		c.options = cl.SpeciesNames()
	}
	return nil
}

// SelectSpecies draws the distribution of a species of the selected class.
func (c *Controller) SelectSpecies(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeDistribution || c.class == "" {
		return fmt.Errorf("%w: species needs distribution mode and a class", ErrSelectorDisabled)
	}
	q, err := c.ds.Quads(c.class, name)
	if err != nil {
		return err
	}

	c.species = name
	c.quads = q
	defs := c.cfg.MarkersFor(c.class)
	c.styleFn = style.Distribution(q, c.cfg.Observation, defs, c.cfg.MarkerScale)
	c.legend = legend.ForSpecies(q, c.cfg.Observation, defs)
	c.revision++
	return nil
}

// CellInfo is the popup text for a clicked cell. Only the richness map
// answers clicks; cells without records count zero.
func (c *Controller) CellInfo(cell string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeRichness || c.richness == nil || cell == "" {
		return "", false
	}
	n, _ := c.richness.Count(cell)
	return fmt.Sprintf("%d species", n), true
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Mode:           c.mode,
		Class:          c.class,
		Species:        c.species,
		Revision:       c.revision,
		ClassEnabled:   c.mode != ModeNone,
		SpeciesEnabled: c.mode == ModeDistribution,
		SpeciesOptions: append([]string(nil), c.options...),
		Info:           c.info,
		Legend:         c.legend,
		Style:          c.styleFn,
	}
	if s.ClassEnabled {
		s.Classes = c.ds.ClassNames()
	}
	return s
}

// Revision increments on every change to the drawn map.
func (c *Controller) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// StyleFunc returns the current style function and the revision it
// belongs to.
func (c *Controller) StyleFunc() (style.Func, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.styleFn, c.revision
}

// Legend returns the current legend.
func (c *Controller) Legend() legend.Legend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.legend
}

// clear empties the map and legend. Callers hold mu.
func (c *Controller) clear() {
	c.styleFn = style.None
	c.legend = legend.Empty()
	c.revision++
}
