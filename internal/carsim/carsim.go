// Package carsim implements the onboard behavior of a simulated electric
// vehicle: how much current it draws each tick given the current offered by
// the charge point, its state of charge, and its charging curve.
package carsim

import (
	"math"
	"math/rand"
	"time"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/carprofile"
)

// TickResult is the outcome of one simulation tick.
type TickResult struct {
	ActualCurrentA    float64
	PowerW            float64
	EnergyDeltaWh     float64
	Soc               float64
	ReachedFullCharge bool
}

// Simulator holds the mutable state of one simulated EV attached to a
// connector for the duration of a charging session.
type Simulator struct {
	Profile carprofile.Profile

	// EffectivePhases is min(Profile.Phases, chargerPhases): the number of
	// phases the car actually draws on once limited by the EVSE it is
	// plugged into. It drives reported power; Profile.Phases (the car's
	// own onboard-charger wiring) still drives acceptance current.
	EffectivePhases int

	Soc               float64 // 0..1
	OfferedCurrentA   float64
	ActualCurrentA    float64
	EnergyDeliveredWh float64
	margin            float64 // sampled once, in [0.5, 1.5)
	rng               *rand.Rand
}

// SetOffered records the current the connector is now offering, so status
// queries between ticks reflect the latest signal rather than the one the
// last tick ran with.
func (s *Simulator) SetOffered(currentA float64) {
	s.OfferedCurrentA = currentA
}

// New creates a simulator for a profile starting at the given state of
// charge, sampling the per-session margin factor once at construction.
// effectivePhases is min(profile.Phases, the charger's own phase count).
func New(profile carprofile.Profile, effectivePhases int, initialSoc float64, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Simulator{
		Profile:         profile,
		EffectivePhases: effectivePhases,
		Soc:             initialSoc,
		margin:          0.5 + rng.Float64(),
		rng:             rng,
	}
}

// Tick advances the simulator by interval, given the current offered by the
// connector (post EVSE-side limiting), and returns the resulting draw and
// energy delivered over the interval.
func (s *Simulator) Tick(offeredCurrentA float64, interval time.Duration) TickResult {
	s.OfferedCurrentA = offeredCurrentA
	if s.Soc >= 1.0 {
		s.Soc = 1.0
		s.ActualCurrentA = 0
		return TickResult{ActualCurrentA: 0, PowerW: 0, EnergyDeltaWh: 0, Soc: s.Soc, ReachedFullCharge: true}
	}

	carMaxA := s.Profile.MaxAcCurrentA
	obcMaxA := (s.Profile.OnboardChargerKw * 1000) / (230 * float64(s.Profile.Phases))
	acceptanceA := math.Min(carMaxA, obcMaxA)

	taperedCarA := acceptanceA * s.taperFactor()

	offeredWithMargin := math.Max(0, offeredCurrentA-s.margin)
	draw := math.Min(taperedCarA, offeredWithMargin)

	jitter := s.rng.Float64()*0.4 - 0.2 // U[-0.2, 0.2]
	draw = math.Max(0, draw+jitter)
	draw = math.Round(draw*10) / 10

	powerW := 230 * draw * float64(s.EffectivePhases)

	hours := interval.Hours()
	deltaWh := powerW * hours
	capacityWh := s.Profile.BatteryCapacityKwh * 1000

	s.EnergyDeliveredWh += deltaWh
	newSoc := s.Soc + deltaWh/capacityWh

	reached := false
	if newSoc >= 1.0 {
		newSoc = 1.0
		reached = true
		draw = 0
	}
	s.Soc = newSoc
	s.ActualCurrentA = draw

	return TickResult{
		ActualCurrentA:    draw,
		PowerW:            powerW,
		EnergyDeltaWh:     deltaWh,
		Soc:               s.Soc,
		ReachedFullCharge: reached,
	}
}

// taperFactor returns the acceptance current multiplier for the current
// SoC: 1.0 below TaperStartSoc, falling off to a 0.05 floor by
// TaperEndSoc according to the profile's curve.
func (s *Simulator) taperFactor() float64 {
	if s.Soc <= s.Profile.TaperStartSoc {
		return 1.0
	}
	if s.Soc >= s.Profile.TaperEndSoc {
		return 0.05
	}

	span := s.Profile.TaperEndSoc - s.Profile.TaperStartSoc
	progress := (s.Soc - s.Profile.TaperStartSoc) / span // 0..1
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	var factor float64
	switch s.Profile.TaperCurve {
	case carprofile.TaperExponential:
		factor = math.Exp(-3 * progress)
	default: // Linear
		factor = 1.0 - progress
	}
	if factor < 0.05 {
		factor = 0.05
	}
	return factor
}
