package legend

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-atlas/internal/atlas"
	"github.com/joeblew999/plat-atlas/internal/style"
)

var markers = []style.MarkerStyle{
	{Match: "2", Radius: 5, Fill: "#e09f3e", Label: "Some label here"},
	{Match: "3", Radius: 4, Fill: "#9e2a2b", Label: "Another label"},
	{Match: "4", Radius: 2, Fill: "#300505", Label: "Last label by radius order"},
}

func TestRichnessBins(t *testing.T) {
	bins := RichnessBins(1, 10, style.DefaultRamp)

	want := [][2]int{{1, 3}, {4, 5}, {6, 6}, {7, 8}, {9, 10}}
	require.Len(t, bins, len(want))
	for i, b := range bins {
		assert.Equal(t, want[i][0], b.Start, "bin %d start", i)
		assert.Equal(t, want[i][1], b.End, "bin %d end", i)
		if i > 0 {
			assert.Equal(t, bins[i-1].End+1, b.Start)
		}
	}
	assert.Equal(t, style.DefaultRamp[0], bins[0].Color)
	assert.Equal(t, style.DefaultRamp[4], bins[4].Color)
}

func TestRichnessBinsNarrowRange(t *testing.T) {
	bins := RichnessBins(1, 2, style.DefaultRamp)
	require.NotEmpty(t, bins)
	assert.Equal(t, 1, bins[0].Start)
	assert.Equal(t, 2, bins[len(bins)-1].End)
	for i := 1; i < len(bins); i++ {
		assert.Equal(t, bins[i-1].End+1, bins[i].Start)
		assert.LessOrEqual(t, bins[i].Start, bins[i].End)
	}
}

func TestRichnessBinsDegenerate(t *testing.T) {
	assert.Equal(t, []Bin{{Start: 4, End: 4, Color: style.DefaultRamp[0]}}, RichnessBins(4, 4, style.DefaultRamp))
}

func TestEntries(t *testing.T) {
	got := Entries(markers, []atlas.Level{"2", "4"})
	require.Len(t, got, 2)
	assert.Equal(t, atlas.Level("2"), got[0].Marker.Match)
	assert.Equal(t, atlas.Level("4"), got[1].Marker.Match)
	assert.InDelta(t, -math.Pi/4, got[0].Angle, 1e-9)
	assert.InDelta(t, math.Pi/4, got[1].Angle, 1e-9)

	single := Entries(markers, []atlas.Level{"3"})
	require.Len(t, single, 1)
	assert.Equal(t, 0.0, single[0].Angle)

	assert.Empty(t, Entries(markers, []atlas.Level{"7"}))
}

func TestForSpecies(t *testing.T) {
	multi, err := atlas.NewQuadsData("sp", []string{"Q1", "Q2"}, []atlas.CellValues{{"2"}, {"4"}})
	require.NoError(t, err)
	single, err := atlas.NewQuadsData("sp", []string{"Q1"}, []atlas.CellValues{{"2"}})
	require.NoError(t, err)

	lg := ForSpecies(multi, style.DefaultObservation, markers)
	assert.Equal(t, KindSpecies, lg.Kind)
	assert.Len(t, lg.Markers, 2)

	assert.Empty(t, ForSpecies(single, style.DefaultObservation, markers).Markers)
	assert.Empty(t, ForSpecies(multi, style.DefaultObservation, nil).Markers)
	assert.Equal(t, KindEmpty, ForSpecies(nil, style.DefaultObservation, markers).Kind)
}

func TestForRichness(t *testing.T) {
	assert.Equal(t, Empty(), ForRichness(atlas.RichnessMap{}, style.DefaultRamp))
	lg := ForRichness(atlas.RichnessMap{"A": 1, "B": 5, "C": 10}, style.DefaultRamp)
	assert.Equal(t, KindRichness, lg.Kind)
	assert.Len(t, lg.Bins, 5)
}

func TestDrawPaintsSwatches(t *testing.T) {
	img := Draw(ForRichness(atlas.RichnessMap{"A": 1, "C": 10}, style.DefaultRamp))
	assert.Equal(t, Width, img.Bounds().Dx())

	first, _ := style.DefaultRamp[0].NRGBA()
	got := img.NRGBAAt(20, 15)
	assert.InDelta(t, first.R, got.R, 2)
	assert.InDelta(t, first.G, got.G, 2)
	assert.InDelta(t, first.B, got.B, 2)
	assert.InDelta(t, first.A, got.A, 2)
	assert.Zero(t, img.NRGBAAt(Width-1, Height-1).A)
}

func TestDrawSpecies(t *testing.T) {
	q, err := atlas.NewQuadsData("sp", []string{"Q1", "Q2"}, []atlas.CellValues{{"2"}, {"4"}})
	require.NoError(t, err)
	img := Draw(ForSpecies(q, style.DefaultObservation, markers))

	assert.NotZero(t, img.NRGBAAt(20, 20).A, "observation swatch")
	assert.NotZero(t, img.NRGBAAt(150, 23).A, "marker sample")
}

func TestEncodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, Empty()))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, Height, img.Bounds().Dy())
}
