package atlas

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleDataset = `[
  {"name": "Class1", "info": "<p>Birds</p>", "species": [
    {"name": "Species 1", "quad": ["Q1", "Q2"], "value": [[2], [2, 4]]},
    {"name": "Species 2", "quad": ["Q2", "Q3"], "value": [[3], [3]]}
  ]},
  {"name": "Class2", "info": "", "species": []}
]`

func mustParse(t *testing.T, doc string) *Dataset {
	t.Helper()
	ds, err := Parse([]byte(doc))
	require.NoError(t, err)
	return ds
}

func TestParseDataset(t *testing.T) {
	ds := mustParse(t, sampleDataset)

	assert.Equal(t, []string{"Class1", "Class2"}, ds.ClassNames())
	cl, err := ds.Class("Class1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Species 1", "Species 2"}, cl.SpeciesNames())
	assert.Equal(t, Stats{Classes: 2, Species: 2, Observations: 4}, ds.Stats())
}

func TestParseRejectsMismatchedValues(t *testing.T) {
	_, err := Parse([]byte(`[{"name":"C","species":[{"name":"S","quad":["Q1","Q2"],"value":[[1]]}]}]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseFillsPresenceOnlyValues(t *testing.T) {
	ds := mustParse(t, `[{"name":"C","species":[{"name":"S","quad":["Q1","Q2"]}]}]`)
	q, err := ds.Quads("C", "S")
	require.NoError(t, err)
	v, ok := q.Value("Q2")
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestParseScalarAndStringLevels(t *testing.T) {
	ds := mustParse(t, `[{"name":"C","species":[{"name":"S","quad":["Q1","Q2"],"value":[3,["a",1]]}]}]`)
	q, err := ds.Quads("C", "S")
	require.NoError(t, err)

	v, _ := q.Value("Q1")
	assert.Equal(t, CellValues{"3"}, v)
	assert.Equal(t, []Level{"1", "3", "a"}, q.UniqueValues())
}

func TestParseWholeFloatLevels(t *testing.T) {
	ds := mustParse(t, `[{"name":"C","species":[{"name":"S","quad":["Q1","Q2"],"value":[[2.0,1.5],4e0]}]}]`)
	q, err := ds.Quads("C", "S")
	require.NoError(t, err)

	v, _ := q.Value("Q1")
	assert.Equal(t, CellValues{"2", "1.5"}, v)
	assert.True(t, v.Contains(IntLevel(2)))
	v, _ = q.Value("Q2")
	assert.True(t, v.Contains(IntLevel(4)))

	var levels []Level
	require.NoError(t, yaml.Unmarshal([]byte(`[2.0, 3, "2.0", b]`), &levels))
	assert.Equal(t, []Level{"2", "3", "2.0", "b"}, levels)
}

func TestLookupErrors(t *testing.T) {
	ds := mustParse(t, sampleDataset)

	cl, err := ds.Class("Class1")
	require.NoError(t, err)
	sp, err := cl.SpeciesByName("Species 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q2", "Q3"}, sp.Quad)
	_, err = cl.SpeciesByName("Nope")
	assert.ErrorIs(t, err, ErrSpeciesNotFound)

	_, err = ds.Class("Nope")
	assert.ErrorIs(t, err, ErrClassNotFound)
	_, err = ds.Quads("Class1", "Nope")
	assert.ErrorIs(t, err, ErrSpeciesNotFound)
}

func TestLevelJSONRoundTripKeepsNumbers(t *testing.T) {
	out, err := json.Marshal(CellValues{"2", "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `[2, "x"]`, string(out))
}

func TestQuadsData(t *testing.T) {
	q, err := NewQuadsData("sp", []string{"A", "B", "A"}, []CellValues{{"2"}, {"4", "2"}, {"3"}})
	require.NoError(t, err)

	t.Run("exists", func(t *testing.T) {
		for _, c := range []string{"A", "B"} {
			assert.True(t, q.Exists(c), c)
		}
		assert.False(t, q.Exists("a"))
		assert.False(t, q.Exists("C"))
	})

	t.Run("first match wins", func(t *testing.T) {
		v, ok := q.Value("A")
		require.True(t, ok)
		assert.Equal(t, CellValues{"2"}, v)
	})

	t.Run("missing cell", func(t *testing.T) {
		v, ok := q.Value("Z")
		assert.False(t, ok)
		assert.Nil(t, v)
	})

	t.Run("unique values", func(t *testing.T) {
		assert.Equal(t, []Level{"2", "3", "4"}, q.UniqueValues())
		assert.True(t, q.HasMultipleValues())
	})
}

func TestQuadsDataSingleValue(t *testing.T) {
	q, err := NewQuadsData("sp", []string{"A", "B"}, []CellValues{{"2"}, {"2"}})
	require.NoError(t, err)
	assert.Equal(t, []Level{"2"}, q.UniqueValues())
	assert.False(t, q.HasMultipleValues())
}

func TestQuadsDataLengthMismatch(t *testing.T) {
	_, err := NewQuadsData("sp", []string{"A"}, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLevelOrdering(t *testing.T) {
	levels := []Level{"10", "b", "2", "a", "-1"}
	SortLevels(levels)
	assert.Equal(t, []Level{"-1", "2", "10", "a", "b"}, levels)
}

func TestComputeRichness(t *testing.T) {
	cl := &ClassRecord{Name: "Class1", Species: []SpeciesRecord{
		{Name: "a", Quad: []string{"Q1", "Q2"}},
		{Name: "b", Quad: []string{"Q2", "Q3"}},
	}}
	want := RichnessMap{"Q1": 1, "Q2": 2, "Q3": 1}
	if diff := cmp.Diff(want, ComputeRichness(cl)); diff != "" {
		t.Fatalf("richness mismatch (-want +got):\n%s", diff)
	}

	reversed := &ClassRecord{Name: "Class1", Species: []SpeciesRecord{cl.Species[1], cl.Species[0]}}
	if diff := cmp.Diff(want, ComputeRichness(reversed)); diff != "" {
		t.Fatalf("species order changed richness (-want +got):\n%s", diff)
	}
}

func TestComputeRichnessEdgeCases(t *testing.T) {
	assert.Empty(t, ComputeRichness(&ClassRecord{Name: "empty"}))
	assert.Empty(t, ComputeRichness(nil))

	dup := &ClassRecord{Species: []SpeciesRecord{{Quad: []string{"Q1", "Q1"}}}}
	assert.Equal(t, RichnessMap{"Q1": 2}, ComputeRichness(dup))
}

func TestRichnessRange(t *testing.T) {
	_, _, ok := RichnessMap{}.Range()
	assert.False(t, ok)

	lo, hi, ok := RichnessMap{"A": 1, "B": 5, "C": 10}.Range()
	require.True(t, ok)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 10, hi)
}

func TestFromCSV(t *testing.T) {
	species := strings.NewReader(`Species,Class,Quad,Value
Sp B,Class1,Q2,3
Sp A,Class1,Q1,2
Sp A,Class1,Q1,4
Sp A,Class1,Q1,2
Sp C,Class0,Q9,1
`)
	info := strings.NewReader("class,info\nClass1,<p>Birds, mostly</p>\n")

	ds, err := FromCSV(species, info)
	require.NoError(t, err)

	assert.Equal(t, []string{"Class0", "Class1"}, ds.ClassNames())
	cl, err := ds.Class("Class1")
	require.NoError(t, err)
	assert.Equal(t, "<p>Birds, mostly</p>", cl.Info)
	assert.Equal(t, []string{"Sp A", "Sp B"}, cl.SpeciesNames())

	q, err := ds.Quads("Class1", "Sp A")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1"}, q.Cells())
	v, _ := q.Value("Q1")
	assert.Equal(t, CellValues{"2", "4"}, v)
}

func TestFromCSVPositionalColumns(t *testing.T) {
	ds, err := FromCSV(strings.NewReader("a,b,c,d\nC,S,Q1,1\n"), nil)
	require.NoError(t, err)
	q, err := ds.Quads("C", "S")
	require.NoError(t, err)
	assert.True(t, q.Exists("Q1"))
}

func TestFromCSVRejectsShortRows(t *testing.T) {
	_, err := FromCSV(strings.NewReader("class,species,quad,value\nC,S\n"), nil)
	assert.ErrorIs(t, err, ErrMalformed)
}
