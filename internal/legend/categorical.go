package legend

import (
	"math"
	"slices"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/style"
)

// Entry is one marker sample in the categorical legend.
type Entry struct {
	Marker style.MarkerStyle `json:"marker" doc:"Configured marker"`
	// Angle of the leader line from the sample to its label, in radians.
	Angle float64 `json:"angle" doc:"Leader line angle in radians"`
}

// Entries lists the configured markers whose level is present, in
// configuration order. Leader angles fan out evenly over a quarter turn
// centred on the horizontal; a single entry points straight across.
func Entries(defs []style.MarkerStyle, present []atlas.Level) []Entry {
	var out []Entry
	for _, def := range defs {
		if slices.Contains(present, def.Match) {
			out = append(out, Entry{Marker: def})
		}
	}
	n := len(out)
	for i := range out {
		out[i].Angle = LeaderAngle(i, n)
	}
	return out
}

// LeaderAngle is (i/(n-1) - 0.5) * π/2, or 0 when n < 2.
func LeaderAngle(i, n int) float64 {
	if n < 2 {
		return 0
	}
	return (float64(i)/float64(n-1) - 0.5) * math.Pi / 2
}
