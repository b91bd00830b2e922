package atlas

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

// speciesColumns are the expected header names of the observations CSV, in
// the positional order used when the header does not name them.
var speciesColumns = []string{"class", "species", "quad", "value"}

// FromCSV builds a dataset from an observations table (class, species,
// quad, value) and an optional info table (class, info HTML). Classes and
// species are sorted by name; each quad appears once per species with its
// distinct levels.
func FromCSV(species io.Reader, info io.Reader) (*Dataset, error) {
	rows, err := readObservations(species)
	if err != nil {
		return nil, err
	}
	infos := map[string]string{}
	if info != nil {
		if infos, err = readInfo(info); err != nil {
			return nil, err
		}
	}

	slices.SortStableFunc(rows, func(a, b observationRow) int {
		if c := strings.Compare(a.class, b.class); c != 0 {
			return c
		}
		return strings.Compare(a.species, b.species)
	})

	ds := &Dataset{}
	for _, row := range rows {
		cl := lastClass(ds, row.class)
		if cl == nil {
			ds.Classes = append(ds.Classes, ClassRecord{Name: row.class, Info: infos[row.class]})
			cl = &ds.Classes[len(ds.Classes)-1]
		}
		sp := lastSpecies(cl, row.species)
		if sp == nil {
			cl.Species = append(cl.Species, SpeciesRecord{Name: row.species})
			sp = &cl.Species[len(cl.Species)-1]
		}
		i := slices.Index(sp.Quad, row.quad)
		if i < 0 {
			sp.Quad = append(sp.Quad, row.quad)
			sp.Value = append(sp.Value, CellValues{})
			i = len(sp.Quad) - 1
		}
		if row.value != "" && !sp.Value[i].Contains(row.value) {
			sp.Value[i] = append(sp.Value[i], row.value)
		}
	}
	for ci := range ds.Classes {
		for si := range ds.Classes[ci].Species {
			for _, vs := range ds.Classes[ci].Species[si].Value {
				SortLevels(vs)
			}
		}
	}
	return ds, nil
}

type observationRow struct {
	class, species, quad string
	value                Level
}

// rows arrive sorted, so the class or species being built is always last.
func lastClass(ds *Dataset, name string) *ClassRecord {
	if n := len(ds.Classes); n > 0 && ds.Classes[n-1].Name == name {
		return &ds.Classes[n-1]
	}
	return nil
}

func lastSpecies(cl *ClassRecord, name string) *SpeciesRecord {
	if n := len(cl.Species); n > 0 && cl.Species[n-1].Name == name {
		return &cl.Species[n-1]
	}
	return nil
}

func readObservations(r io.Reader) ([]observationRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: observations table is empty", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("reading observations header: %w", err)
	}
	idx := columnIndex(header)

	var rows []observationRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading observations: %w", err)
		}
		line, _ := cr.FieldPos(0)
		get := func(col int) (string, error) {
			if col >= len(rec) {
				return "", fmt.Errorf("%w: line %d has %d fields", ErrMalformed, line, len(rec))
			}
			return strings.TrimSpace(rec[col]), nil
		}
		var row observationRow
		var v string
		for i, dst := range []*string{&row.class, &row.species, &row.quad, &v} {
			if *dst, err = get(idx[i]); err != nil {
				return nil, err
			}
		}
		row.value = Level(v)
		if row.class == "" || row.species == "" || row.quad == "" {
			return nil, fmt.Errorf("%w: line %d has an empty class, species or quad", ErrMalformed, line)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// columnIndex maps speciesColumns to header positions, falling back to the
// positional layout for names the header does not carry.
func columnIndex(header []string) []int {
	idx := make([]int, len(speciesColumns))
	for i, name := range speciesColumns {
		idx[i] = i
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				idx[i] = j
				break
			}
		}
	}
	return idx
}

// readInfo reads "class,info" lines. Info is everything after the first
// comma, so it may carry unquoted commas and HTML.
func readInfo(r io.Reader) (map[string]string, error) {
	infos := map[string]string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		class, text, _ := strings.Cut(line, ",")
		infos[strings.TrimSpace(class)] = text
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading info table: %w", err)
	}
	return infos, nil
}
