// Package carprofile defines the static EV profile catalog the car
// simulator draws on, loaded via YAML, plus a built-in set of fixtures so
// the catalog always has something to return even with no fixture file on
// disk.
package carprofile

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// TaperCurve selects the shape of current reduction near full charge.
type TaperCurve string

const (
	TaperLinear      TaperCurve = "Linear"
	TaperExponential TaperCurve = "Exponential"
)

// Profile is the static description of a simulated EV.
type Profile struct {
	ID                 string     `yaml:"id" validate:"required"`
	Name               string     `yaml:"name" validate:"required"`
	BatteryCapacityKwh float64    `yaml:"battery_capacity_kwh" validate:"gt=0"`
	MaxAcCurrentA      float64    `yaml:"max_ac_current_a" validate:"gt=0"`
	OnboardChargerKw   float64    `yaml:"onboard_charger_kw" validate:"gt=0"`
	Phases             int        `yaml:"phases" validate:"oneof=1 2 3"`
	TaperStartSoc      float64    `yaml:"taper_start_soc" validate:"gt=0,lt=1"`
	TaperEndSoc        float64    `yaml:"taper_end_soc" validate:"gt=0,lte=1"`
	TaperCurve         TaperCurve `yaml:"taper_curve" validate:"oneof=Linear Exponential"`
}

var validatorInstance = validator.New()

// Validate enforces the struct tags and the TaperEndSoc > TaperStartSoc
// invariant the tags can't express.
func (p *Profile) Validate() error {
	if err := validatorInstance.Struct(p); err != nil {
		return err
	}
	if p.TaperEndSoc <= p.TaperStartSoc {
		return fmt.Errorf("taper_end_soc (%.3f) must be greater than taper_start_soc (%.3f)", p.TaperEndSoc, p.TaperStartSoc)
	}
	return nil
}

// Builtin is the catalog shipped with the simulator: a mid-size generic EV,
// a 1-phase 32A car tapering from 0.85 SoC, and a fast 3-phase car.
var Builtin = []Profile{
	{
		ID: "generic-medium", Name: "Generic mid-size EV",
		BatteryCapacityKwh: 60, MaxAcCurrentA: 32, OnboardChargerKw: 11,
		Phases: 3, TaperStartSoc: 0.80, TaperEndSoc: 1.0, TaperCurve: TaperLinear,
	},
	{
		ID: "1p-32a", Name: "1-phase 32A EV",
		BatteryCapacityKwh: 40, MaxAcCurrentA: 32, OnboardChargerKw: 7.4,
		Phases: 1, TaperStartSoc: 0.85, TaperEndSoc: 1.0, TaperCurve: TaperLinear,
	},
	{
		ID: "3p-fast", Name: "3-phase fast AC EV",
		BatteryCapacityKwh: 77, MaxAcCurrentA: 32, OnboardChargerKw: 22,
		Phases: 3, TaperStartSoc: 0.70, TaperEndSoc: 1.0, TaperCurve: TaperExponential,
	},
}

// Catalog is an ID-indexed set of profiles.
type Catalog struct {
	profiles map[string]Profile
}

// NewCatalog builds a catalog seeded with the built-in fixtures.
func NewCatalog() *Catalog {
	c := &Catalog{profiles: make(map[string]Profile, len(Builtin))}
	for _, p := range Builtin {
		c.profiles[p.ID] = p
	}
	return c
}

// LoadFile merges additional fixtures from a YAML file (a top-level
// `profiles:` list), overriding built-ins with the same ID.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read car profile file: %w", err)
	}

	var doc struct {
		Profiles []Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse car profile file: %w", err)
	}

	for _, p := range doc.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid car profile %q: %w", p.ID, err)
		}
		c.profiles[p.ID] = p
	}
	return nil
}

// Get looks up a profile by ID.
func (c *Catalog) Get(id string) (Profile, bool) {
	p, ok := c.profiles[id]
	return p, ok
}

// List returns every profile in the catalog, sorted by ID is not
// guaranteed; callers needing stable order should sort themselves.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	return out
}
