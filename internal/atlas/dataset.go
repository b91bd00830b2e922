// Package atlas holds the species atlas data model and the queries the map
// is styled from: per-species cell lookups and per-class richness.
package atlas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrClassNotFound is returned when a class name is not in the dataset.
	ErrClassNotFound = errors.New("class not found")
	// ErrSpeciesNotFound is returned when a species name is not in its class.
	ErrSpeciesNotFound = errors.New("species not found")
	// ErrMalformed is returned for datasets that violate the data model.
	ErrMalformed = errors.New("malformed dataset")
)

// SpeciesRecord lists the cells a species was observed in. Value is
// parallel to Quad.
type SpeciesRecord struct {
	Name  string       `json:"name" doc:"Species name" example:"Species 1"`
	Quad  []string     `json:"quad" doc:"Grid cell identifiers" example:"[\"Q1\",\"Q2\"]"`
	Value []CellValues `json:"value" doc:"Attribute levels per cell, parallel to quad"`
}

// ClassRecord groups species under a class.
type ClassRecord struct {
	Name    string          `json:"name" doc:"Class name" example:"Class1"`
	Info    string          `json:"info" doc:"Additional information (HTML fragment)"`
	Species []SpeciesRecord `json:"species" doc:"Species in this class"`
}

// SpeciesByName returns the first species named name.
func (c *ClassRecord) SpeciesByName(name string) (*SpeciesRecord, error) {
	for i := range c.Species {
		if c.Species[i].Name == name {
			return &c.Species[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in class %q", ErrSpeciesNotFound, name, c.Name)
}

// SpeciesNames lists species names in dataset order.
func (c *ClassRecord) SpeciesNames() []string {
	names := make([]string, len(c.Species))
	for i, sp := range c.Species {
		names[i] = sp.Name
	}
	return names
}

// Dataset is the loaded atlas document. It is read-only after Parse.
type Dataset struct {
	Classes []ClassRecord
}

// Parse decodes and validates a dataset document.
func Parse(data []byte) (*Dataset, error) {
	var classes []ClassRecord
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ds := &Dataset{Classes: classes}
	if err := ds.normalize(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Load reads a dataset document from r.
func Load(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return Parse(data)
}

// MarshalJSON writes the dataset in its document shape (a bare array).
func (d *Dataset) MarshalJSON() ([]byte, error) {
	if d.Classes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Classes)
}

// normalize checks the quad/value invariant. Presence-only species (no value
// array) get an empty value set per cell.
func (d *Dataset) normalize() error {
	for ci := range d.Classes {
		cl := &d.Classes[ci]
		if cl.Name == "" {
			return fmt.Errorf("%w: class %d has no name", ErrMalformed, ci)
		}
		for si := range cl.Species {
			sp := &cl.Species[si]
			if sp.Value == nil {
				sp.Value = make([]CellValues, len(sp.Quad))
				continue
			}
			if len(sp.Quad) != len(sp.Value) {
				return fmt.Errorf("%w: %s/%s has %d quads and %d values",
					ErrMalformed, cl.Name, sp.Name, len(sp.Quad), len(sp.Value))
			}
		}
	}
	return nil
}

// Class returns the first class named name.
func (d *Dataset) Class(name string) (*ClassRecord, error) {
	for i := range d.Classes {
		if d.Classes[i].Name == name {
			return &d.Classes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrClassNotFound, name)
}

// ClassNames lists class names in dataset order.
func (d *Dataset) ClassNames() []string {
	names := make([]string, len(d.Classes))
	for i, c := range d.Classes {
		names[i] = c.Name
	}
	return names
}

// Quads builds the cell index for one species of one class.
func (d *Dataset) Quads(class, species string) (*QuadsData, error) {
	cl, err := d.Class(class)
	if err != nil {
		return nil, err
	}
	sp, err := cl.SpeciesByName(species)
	if err != nil {
		return nil, err
	}
	return NewQuadsData(sp.Name, sp.Quad, sp.Value)
}

// Stats summarises dataset size.
type Stats struct {
	Classes      int `json:"classes" doc:"Number of classes"`
	Species      int `json:"species" doc:"Number of species"`
	Observations int `json:"observations" doc:"Number of species/cell records"`
}

// Stats counts classes, species and species/cell records.
func (d *Dataset) Stats() Stats {
	st := Stats{Classes: len(d.Classes)}
	for _, c := range d.Classes {
		st.Species += len(c.Species)
		for _, sp := range c.Species {
			st.Observations += len(sp.Quad)
		}
	}
	return st
}
