// Package registry holds the read-only lab office directory used to validate
// sample assignment at reception.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"

	"samplecore/pkg/domain"
)

// officeRecord is the on-disk shape of one registry entry.
type officeRecord struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Region string `json:"region" validate:"required"`
}

// Registry is an immutable lab office directory. It satisfies the service's
// office lookup so unknown lab IDs are rejected before a sample is created.
type Registry struct {
	byID  map[string]domain.LabOffice
	order []string
}

var validate = validator.New()

// New builds a registry from the given offices. Duplicate IDs are an error.
func New(offices []domain.LabOffice) (*Registry, error) {
	r := &Registry{byID: make(map[string]domain.LabOffice, len(offices))}
	for _, o := range offices {
		rec := officeRecord{ID: o.ID, Name: o.Name, Region: o.Region}
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("registry: invalid office %q: %w", o.ID, err)
		}
		if _, dup := r.byID[o.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate office id %s", o.ID)
		}
		r.byID[o.ID] = o
		r.order = append(r.order, o.ID)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadFile reads a JSON array of offices from path.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []officeRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	offices := make([]domain.LabOffice, 0, len(recs))
	for _, rec := range recs {
		offices = append(offices, domain.LabOffice{ID: rec.ID, Name: rec.Name, Region: rec.Region})
	}
	return New(offices)
}

// Open builds the registry from SAMPLECORE_OFFICES_FILE when set, falling
// back to the built-in seed.
func Open() (*Registry, error) {
	if path := os.Getenv("SAMPLECORE_OFFICES_FILE"); path != "" {
		return LoadFile(path)
	}
	return New(seedOffices)
}

// Valid reports whether id names a known office.
func (r *Registry) Valid(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns the office with the given id.
func (r *Registry) Get(id string) (domain.LabOffice, bool) {
	o, ok := r.byID[id]
	return o, ok
}

// List returns all offices ordered by ID.
func (r *Registry) List() []domain.LabOffice {
	out := make([]domain.LabOffice, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// seedOffices covers the default deployment when no registry file is given.
var seedOffices = []domain.LabOffice{
	{ID: "aomori-main", Name: "Aomori Central Laboratory", Region: "Aomori"},
	{ID: "hachinohe", Name: "Hachinohe Port Laboratory", Region: "Aomori"},
	{ID: "mutsu", Name: "Mutsu Bay Field Office", Region: "Aomori"},
}
