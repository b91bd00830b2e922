// Package style maps atlas values to colors and builds the per-cell styles
// handed to the map renderer.
package style

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a CSS hex color: #rgb, #rrggbb or #rrggbbaa.
type Color string

// NRGBA parses c into a non-premultiplied color.
func (c Color) NRGBA() (color.NRGBA, error) {
	s := strings.TrimSpace(string(c))
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	alpha := uint8(0xff)
	switch len(s) {
	case 4:
		s = "#" + strings.Repeat(s[1:2], 2) + strings.Repeat(s[2:3], 2) + strings.Repeat(s[3:4], 2)
	case 9:
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("color %q: bad alpha: %w", c, err)
		}
		alpha = uint8(a)
		s = s[:7]
	}
	cf, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", c, err)
	}
	r, g, b := cf.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}, nil
}

// Validate reports whether c parses.
func (c Color) Validate() error {
	_, err := c.NRGBA()
	return err
}

// Steps is the number of classes in a Ramp.
const Steps = 5

// Ramp is a five-step sequential palette, lightest first.
type Ramp [Steps]Color

// DefaultRamp is the richness palette of the atlas.
var DefaultRamp = Ramp{"#DAA17Eaa", "#E98449aa", "#D94F45aa", "#AD1F23aa", "#540804aa"}

// Fraction places value within [min, max], clamped to [0, 1]. A degenerate
// range (max <= min) or a NaN input yields 0.
func Fraction(value, min, max float64) float64 {
	if !(max > min) || math.IsNaN(value) {
		return 0
	}
	f := (value - min) / (max - min)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Bin returns the ramp index for value: closed-open breaks at 0.2, 0.4, 0.6
// and 0.8 of the range, with the top bin closed at 1.
func Bin(value, min, max float64) int {
	f := Fraction(value, min, max)
	switch {
	case f >= 0.8:
		return 4
	case f >= 0.6:
		return 3
	case f >= 0.4:
		return 2
	case f >= 0.2:
		return 1
	}
	return 0
}

// ColorFor returns the ramp color for value within [min, max].
func (r Ramp) ColorFor(value, min, max float64) Color {
	return r[Bin(value, min, max)]
}

// ColorFor maps value with DefaultRamp.
func ColorFor(value, min, max float64) Color {
	return DefaultRamp.ColorFor(value, min, max)
}

// Validate checks every ramp color.
func (r Ramp) Validate() error {
	for i, c := range r {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("ramp step %d: %w", i, err)
		}
	}
	return nil
}
