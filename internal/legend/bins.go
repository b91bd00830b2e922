// Package legend computes and draws the map legend: richness bins for the
// continuous view and observation/marker samples for the species view.
package legend

import (
	"math"

	"github.com/joeblew999/plat-atlas/internal/style"
)

// Bin is one richness swatch covering counts Start..End inclusive.
type Bin struct {
	Start int         `json:"start" doc:"Lowest count in the bin"`
	End   int         `json:"end" doc:"Highest count in the bin"`
	Color style.Color `json:"color" doc:"Swatch color"`
}

// RichnessBins splits [min, max] into the ramp's five equal-width classes.
// Bin k ends at round(min + k/5 * (max-min)) and the next bin starts one
// above it. Classes left empty by a narrow range are skipped; a degenerate
// range gives a single bin.
func RichnessBins(min, max int, ramp style.Ramp) []Bin {
	if max <= min {
		return []Bin{{Start: min, End: min, Color: ramp[0]}}
	}
	span := float64(max - min)
	bins := make([]Bin, 0, style.Steps)
	start := min
	for k := 1; k <= style.Steps; k++ {
		end := int(math.Floor(float64(min) + float64(k)/style.Steps*span + 0.5))
		if end >= start {
			bins = append(bins, Bin{
				Start: start,
				End:   end,
				Color: ramp.ColorFor(float64(start), float64(min), float64(max)),
			})
			start = end + 1
		}
	}
	return bins
}
