// Package reference provides the read-only catalogs of forest species,
// physiographic zones, height-diameter models, and allometric models.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

//go:embed catalog.toml
var embedded []byte

// Wildcard in an allometric model's species list makes it applicable to
// every species.
const Wildcard = "*"

// Species is a reference forest species.
type Species struct {
	Code           string  `toml:"code" json:"code"`
	ScientificName string  `toml:"scientific_name" json:"scientific_name"`
	LocalName      string  `toml:"local_name" json:"local_name"`
	WoodDensity    float64 `toml:"wood_density" json:"wood_density"`
	FormFactor     float64 `toml:"form_factor" json:"form_factor"`
}

// Physiography is a physiographic zone.
type Physiography struct {
	Code           string `toml:"code" json:"code"`
	Name           string `toml:"name" json:"name"`
	DefaultHDModel string `toml:"default_hd_model" json:"default_hd_model"`
}

// Model is a numerical model evaluated by the compute engine.
type Model struct {
	ID      string             `toml:"id" json:"id"`
	Name    string             `toml:"name" json:"name"`
	Form    string             `toml:"form" json:"form"`
	Params  map[string]float64 `toml:"params" json:"params,omitempty"`
	Species []string           `toml:"species" json:"species,omitempty"`
}

// AppliesTo reports whether an allometric model may be used for a species.
func (m Model) AppliesTo(code string) bool {
	return slices.Contains(m.Species, code) || slices.Contains(m.Species, Wildcard)
}

type document struct {
	Species          []Species      `toml:"species"`
	Physiography     []Physiography `toml:"physiography"`
	HDModels         []Model        `toml:"hd_models"`
	AllometricModels []Model        `toml:"allometric_models"`
}

// Catalog is an immutable, indexed reference catalog.
type Catalog struct {
	doc          document
	species      map[string]Species
	physiography map[string]Physiography
	hdModels     map[string]Model
	allometric   map[string]Model
}

// Load reads the catalog file named in cfg, or the embedded catalog when
// none is configured.
func Load(cfg *Config) (*Catalog, error) {
	data := embedded
	if cfg != nil && cfg.CatalogFile != "" {
		b, err := os.ReadFile(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a catalog from TOML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		doc:          doc,
		species:      make(map[string]Species, len(doc.Species)),
		physiography: make(map[string]Physiography, len(doc.Physiography)),
		hdModels:     make(map[string]Model, len(doc.HDModels)),
		allometric:   make(map[string]Model, len(doc.AllometricModels)),
	}

	for _, s := range doc.Species {
		c.species[s.Code] = s
	}
	for _, m := range doc.HDModels {
		c.hdModels[m.ID] = m
	}
	for _, m := range doc.AllometricModels {
		c.allometric[m.ID] = m
	}
	for _, p := range doc.Physiography {
		if p.DefaultHDModel != "" {
			if _, ok := c.hdModels[p.DefaultHDModel]; !ok {
				return nil, fmt.Errorf("physiography %s: unknown default hd model %s", p.Code, p.DefaultHDModel)
			}
		}
		c.physiography[p.Code] = p
	}

	return c, nil
}

func (c *Catalog) Species() []Species            { return slices.Clone(c.doc.Species) }
func (c *Catalog) Physiographies() []Physiography { return slices.Clone(c.doc.Physiography) }
func (c *Catalog) HDModels() []Model              { return slices.Clone(c.doc.HDModels) }
func (c *Catalog) AllometricModels() []Model      { return slices.Clone(c.doc.AllometricModels) }

// FindSpecies returns the species with the given code.
func (c *Catalog) FindSpecies(code string) (Species, bool) {
	s, ok := c.species[code]
	return s, ok
}

// FindPhysiography returns the zone with the given code.
func (c *Catalog) FindPhysiography(code string) (Physiography, bool) {
	p, ok := c.physiography[code]
	return p, ok
}

// FindHDModel returns the HD model with the given id.
func (c *Catalog) FindHDModel(id string) (Model, bool) {
	m, ok := c.hdModels[id]
	return m, ok
}

// FindAllometric returns the allometric model with the given id.
func (c *Catalog) FindAllometric(id string) (Model, bool) {
	m, ok := c.allometric[id]
	return m, ok
}

// AllometricFor returns the default allometric model for a species: the
// first model naming the species explicitly, else the first wildcard model.
func (c *Catalog) AllometricFor(code string) (Model, bool) {
	for _, m := range c.doc.AllometricModels {
		if slices.Contains(m.Species, code) {
			return m, true
		}
	}
	for _, m := range c.doc.AllometricModels {
		if slices.Contains(m.Species, Wildcard) {
			return m, true
		}
	}
	return Model{}, false
}
