package legend

import (
	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/style"
)

// Kind identifies which legend layout applies.
type Kind string

const (
	KindEmpty    Kind = "empty"
	KindRichness Kind = "richness"
	KindSpecies  Kind = "species"
)

// Legend describes what the legend canvas shows. It is drawn by Draw and
// also served as JSON.
type Legend struct {
	Kind        Kind               `json:"kind" enum:"empty,richness,species" doc:"Legend layout"`
	Bins        []Bin              `json:"bins,omitempty" doc:"Richness swatches"`
	Observation *style.Observation `json:"observation,omitempty" doc:"Observation swatch"`
	Markers     []Entry            `json:"markers,omitempty" doc:"Categorical marker samples"`
}

// Empty is the cleared legend.
func Empty() Legend {
	return Legend{Kind: KindEmpty}
}

// ForRichness builds the continuous legend of a richness map. An empty map
// gives an empty legend.
func ForRichness(r atlas.RichnessMap, ramp style.Ramp) Legend {
	lo, hi, ok := r.Range()
	if !ok {
		return Empty()
	}
	return Legend{Kind: KindRichness, Bins: RichnessBins(lo, hi, ramp)}
}

// ForSpecies builds the observation legend of a species. Marker samples
// are added only when the class has markers configured and the species
// carries more than one distinct level.
func ForSpecies(q *atlas.QuadsData, obs style.Observation, defs []style.MarkerStyle) Legend {
	if q == nil {
		return Empty()
	}
	lg := Legend{Kind: KindSpecies, Observation: &obs}
	if len(defs) > 0 && q.HasMultipleValues() {
		lg.Markers = Entries(defs, q.UniqueValues())
	}
	return lg
}
