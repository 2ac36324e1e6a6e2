package carprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogSeedsBuiltins(t *testing.T) {
	c := NewCatalog()
	for _, p := range Builtin {
		got, ok := c.Get(p.ID)
		require.True(t, ok)
		assert.Equal(t, p.Name, got.Name)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	p := Profile{}
	assert.Error(t, p.Validate())
}

func TestValidateRejectsInvertedTaperWindow(t *testing.T) {
	p := Profile{
		ID: "x", Name: "x", BatteryCapacityKwh: 10, MaxAcCurrentA: 16, OnboardChargerKw: 3.6,
		Phases: 1, TaperStartSoc: 0.9, TaperEndSoc: 0.5, TaperCurve: TaperLinear,
	}
	assert.Error(t, p.Validate())
}

func TestValidateAcceptsBuiltins(t *testing.T) {
	for _, p := range Builtin {
		p := p
		assert.NoError(t, p.Validate())
	}
}

func TestLoadFileMergesAndOverridesByID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yaml")
	content := `
profiles:
  - id: generic-medium
    name: Overridden Generic EV
    battery_capacity_kwh: 75
    max_ac_current_a: 32
    onboard_charger_kw: 11
    phases: 3
    taper_start_soc: 0.8
    taper_end_soc: 1.0
    taper_curve: Linear
  - id: custom-ev
    name: Custom EV
    battery_capacity_kwh: 50
    max_ac_current_a: 16
    onboard_charger_kw: 3.6
    phases: 1
    taper_start_soc: 0.85
    taper_end_soc: 1.0
    taper_curve: Exponential
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewCatalog()
	require.NoError(t, c.LoadFile(path))

	overridden, ok := c.Get("generic-medium")
	require.True(t, ok)
	assert.Equal(t, "Overridden Generic EV", overridden.Name)
	assert.Equal(t, 75.0, overridden.BatteryCapacityKwh)

	custom, ok := c.Get("custom-ev")
	require.True(t, ok)
	assert.Equal(t, "Custom EV", custom.Name)

	assert.Len(t, c.List(), len(Builtin)+1)
}

func TestLoadFileRejectsInvalidProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	content := `
profiles:
  - id: bad
    name: Bad EV
    battery_capacity_kwh: -5
    max_ac_current_a: 16
    onboard_charger_kw: 3.6
    phases: 1
    taper_start_soc: 0.85
    taper_end_soc: 1.0
    taper_curve: Linear
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c := NewCatalog()
	assert.Error(t, c.LoadFile(path))
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	c := NewCatalog()
	assert.Error(t, c.LoadFile("/nonexistent/path/profiles.yaml"))
}
